package i18n

import (
	"strings"
	"sync"
)

// Catalog is a map-backed message catalog with {var} interpolation.
// Lookups for missing keys report ok=false instead of failing so
// callers can fall back to literal text.
type Catalog struct {
	mu       sync.RWMutex
	messages map[string]string
}

// NewCatalog creates a catalog seeded with the given messages.
func NewCatalog(messages map[string]string) *Catalog {
	c := &Catalog{messages: make(map[string]string, len(messages))}
	for k, v := range messages {
		c.messages[k] = v
	}
	return c
}

// Add registers or replaces a message.
func (c *Catalog) Add(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[key] = text
}

// T resolves key, substituting {name} placeholders from vars.
func (c *Catalog) T(key string, vars map[string]string) (string, bool) {
	c.mu.RLock()
	text, ok := c.messages[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text, true
}

// DefaultCatalog returns the English messages for the real-time handlers.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string]string{
		"tasks.started":   "{task} started",
		"tasks.completed": "{task} completed",
		"tasks.failed":    "{task} failed",

		"tasks.types.transcribe": "Transcription",
		"tasks.types.summarize":  "Summary",
		"tasks.types.diarize":    "Speaker detection",

		"notifications.meeting_ready":     "Your meeting notes are ready",
		"notifications.transcript_shared": "A transcript was shared with you",

		"projects.user_joined":  "{user} joined {project}",
		"projects.user_left":    "{user} left {project}",
		"projects.user_removed": "{user} was removed from {project}",
	})
}
