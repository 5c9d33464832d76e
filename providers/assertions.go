package providers

import (
	"github.com/meetscribe/realtime/src/plugins"
	"github.com/meetscribe/realtime/src/types"
)

// Compile-time interface assertions.
var (
	_ plugins.Plugin      = (*RealtimePlugin)(nil)
	_ plugins.HasRoutes   = (*RealtimePlugin)(nil)
	_ plugins.HasServices = (*RealtimePlugin)(nil)

	_ types.URLBuilder = TokenURLBuilder("ws://localhost/realtime/ws")
)
