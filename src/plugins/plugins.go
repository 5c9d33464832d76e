package plugins

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// PluginContext carries host-app facilities into a plugin.
type PluginContext struct {
	Logger zerolog.Logger
}

// ServiceDefinition exposes a plugin-owned service for dependency
// injection into the host app.
type ServiceDefinition struct {
	ID      string
	Factory func() any
}

// Plugin is the lifecycle contract a host app drives.
type Plugin interface {
	ID() string
	Name() string
	Version() string
	IsActive() bool
	Activate(ctx *PluginContext) error
	Deactivate() error
}

// HasRoutes is implemented by plugins contributing HTTP routes.
type HasRoutes interface {
	RegisterRoutes(group fiber.Router)
}

// HasServices is implemented by plugins exposing injectable services.
type HasServices interface {
	Services() []ServiceDefinition
}
