// Package sink delivers change events to their destination.
package sink

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/wneessen/go-mail"

	"github.com/ppiankov/changewatch/internal/feeder"
)

// ErrNotConnected is returned by Send before Connect or after Disconnect.
var ErrNotConnected = errors.New("sink is not connected")

// Sink is a notification destination. Connect is called once per run,
// Send once per event and Disconnect at teardown.
type Sink interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, ev feeder.Event) error
	Disconnect() error
}

// Subject prefixes the event subject with the source name.
func Subject(ev feeder.Event) string {
	if ev.Name == "" {
		return ev.Subject
	}
	return "[" + ev.Name + "] " + ev.Subject
}

// IsRetryable reports whether a failed Send is worth a reconnect and retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && sendErr.IsTemp() {
		return true
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "timeout")
}
