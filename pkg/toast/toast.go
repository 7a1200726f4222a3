package toast

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/agora-dev/agora/internal/errors"
)

// EventName is the event name toasts are emitted under.
const EventName = "agora:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Toast is one notification.
type Toast struct {
	Level       Type   `json:"level"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message"`
	ActionLabel string `json:"actionLabel,omitempty"`
	ActionID    string `json:"actionID,omitempty"`
}

// Emitter delivers toasts to whatever shows them.
type Emitter interface {
	Emit(t Toast)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Toast)

// Emit calls f(t).
func (f EmitterFunc) Emit(t Toast) { f(t) }

// Show emits a toast notification.
func Show(e Emitter, level Type, message string) {
	e.Emit(Toast{Level: level, Message: message})
}

// Success shows a success toast.
//
//	toast.Success(e, "Comment posted")
func Success(e Emitter, message string) {
	Show(e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(e, "Failed to delete post")
func Error(e Emitter, message string) {
	Show(e, TypeError, message)
}

// Warning shows a warning toast.
func Warning(e Emitter, message string) {
	Show(e, TypeWarning, message)
}

// Info shows an info toast.
func Info(e Emitter, message string) {
	Show(e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(e, toast.TypeSuccess, "Report", "Thanks, we'll take a look.")
func WithTitle(e Emitter, level Type, title, message string) {
	e.Emit(Toast{Level: level, Title: title, Message: message})
}

// WithAction shows a toast with an action button.
//
//	toast.WithAction(e, toast.TypeWarning, "Please sign in", "Sign in", "login")
func WithAction(e Emitter, level Type, message, actionLabel, actionID string) {
	e.Emit(Toast{Level: level, Message: message, ActionLabel: actionLabel, ActionID: actionID})
}

// ActionLogin is the action id of the sign-in prompt.
const ActionLogin = "login"

// FromError shows the toast for a failed operation. Busy errors are an
// expected guard and show nothing. It reports whether a toast was emitted.
func FromError(e Emitter, err error) bool {
	if err == nil {
		return false
	}
	switch errors.KindOf(err) {
	case errors.KindBusy:
		return false
	case errors.KindAuthRequired:
		WithAction(e, TypeWarning, "Please sign in to continue.", "Sign in", ActionLogin)
	case errors.KindForbidden:
		Error(e, "You don't have permission to do that.")
	case errors.KindValidation:
		Warning(e, messageOf(err, "Please check your input."))
	default:
		Error(e, messageOf(err, "Something went wrong. Please try again."))
	}
	return true
}

func messageOf(err error, fallback string) string {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return fallback
	}
	switch {
	case e.ServerMessage != "":
		return e.ServerMessage
	case e.Kind == errors.KindValidation && e.Detail != "":
		return e.Detail
	}
	return fallback
}

// Log returns an Emitter that writes toasts to logger.
func Log(logger *slog.Logger) Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return EmitterFunc(func(t Toast) {
		level := slog.LevelInfo
		switch t.Level {
		case TypeError:
			level = slog.LevelError
		case TypeWarning:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "toast",
			"event", EventName,
			"level", string(t.Level),
			"title", t.Title,
			"message", t.Message,
		)
	})
}

// Channel is an Emitter that queues toasts for a consumer. When the buffer
// is full new toasts are dropped rather than blocking the emitter.
type Channel struct {
	ch      chan Toast
	mu      sync.Mutex
	dropped int
}

// NewChannel creates a Channel with the given buffer size.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Toast, size)}
}

// Emit queues t.
func (c *Channel) Emit(t Toast) {
	select {
	case c.ch <- t:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Toast {
	return c.ch
}

// Dropped returns how many toasts were dropped.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Multi fans toasts out to several emitters.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(t Toast) {
		for _, e := range emitters {
			if e != nil {
				e.Emit(t)
			}
		}
	})
}
