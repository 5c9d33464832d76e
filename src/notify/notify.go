package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/meetscribe/realtime/src/types"
)

// LogNotifier is the default Notifier for headless hosts: it renders
// notifications as log lines. UI hosts substitute their own toast
// surface.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(kind types.NotifyKind, text string) {
	switch kind {
	case types.NotifyError:
		n.logger.Error().Str("kind", string(kind)).Msg(text)
	default:
		n.logger.Info().Str("kind", string(kind)).Msg(text)
	}
}

func (n *LogNotifier) NotifyIncoming(text string) {
	n.logger.Info().Str("kind", "incoming").Msg(text)
}

// Event is a notification captured by a Recorder.
type Event struct {
	Kind types.NotifyKind
	Text string
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(kind types.NotifyKind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Text: text})
}

func (r *Recorder) NotifyIncoming(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: "incoming", Text: text})
}

// Events returns a copy of the captured notifications.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Event, len(r.events))
	copy(cp, r.events)
	return cp
}
