package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/ppiankov/changewatch/internal/feeder"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not connected", ErrNotConnected, true},
		{"eof", fmt.Errorf("read reply: %w", io.EOF), true},
		{"econnreset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"epipe", syscall.EPIPE, true},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"reset text", errors.New("read tcp: connection reset by peer"), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"timeout text", errors.New("dial timeout"), true},
		{"auth", errors.New("535 authentication failed"), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSubject(t *testing.T) {
	ev := feeder.Event{Name: "lwn", Subject: "Kernel release"}
	if got := Subject(ev); got != "[lwn] Kernel release" {
		t.Errorf("got %q", got)
	}
	if got := Subject(feeder.Event{Subject: "bare"}); got != "bare" {
		t.Errorf("got %q", got)
	}
}

func TestNewSMTP_Validation(t *testing.T) {
	valid := SMTPConfig{Host: "smtp.example.com", From: "a@example.com", To: []string{"b@example.com"}}

	tests := []struct {
		name    string
		mutate  func(c *SMTPConfig)
		wantErr bool
	}{
		{"valid", func(*SMTPConfig) {}, false},
		{"no host", func(c *SMTPConfig) { c.Host = "" }, true},
		{"no from", func(c *SMTPConfig) { c.From = " " }, true},
		{"no to", func(c *SMTPConfig) { c.To = nil }, true},
		{"bad tls", func(c *SMTPConfig) { c.TLS = "sometimes" }, true},
		{"tls none", func(c *SMTPConfig) { c.TLS = TLSNone }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewSMTP(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSMTP_Defaults(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "h", From: "a@example.com", To: []string{"b@example.com"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.cfg.Port != DefaultSMTPPort || s.cfg.Timeout != DefaultSMTPTimeout {
		t.Errorf("defaults not applied: %+v", s.cfg)
	}
}

func TestSMTP_SendBeforeConnect(t *testing.T) {
	s, _ := NewSMTP(SMTPConfig{Host: "h", From: "a@example.com", To: []string{"b@example.com"}})
	err := s.Send(context.Background(), feeder.Event{Subject: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("disconnect without connect: %v", err)
	}
}

func TestSMTP_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	s, _ := NewSMTP(SMTPConfig{
		Host: "127.0.0.1", Port: port, TLS: TLSNone, Timeout: 2 * time.Second,
		From: "a@example.com", To: []string{"b@example.com"},
	})
	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if !errors.Is(s.Send(context.Background(), feeder.Event{}), ErrNotConnected) {
		t.Error("failed connect left a client behind")
	}
}

func TestSMTP_Message(t *testing.T) {
	s, _ := NewSMTP(SMTPConfig{Host: "h", From: "watch@example.com", To: []string{"me@example.com"}})
	date := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	msg, err := s.message(feeder.Event{Name: "lwn", Subject: "Hello", Body: "<p>x</p>", HTML: true, Date: date})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if got := msg.GetGenHeader("Subject"); len(got) != 1 || got[0] != "[lwn] Hello" {
		t.Errorf("subject header = %v", got)
	}

	if _, err := s.message(feeder.Event{}); err != nil {
		t.Errorf("empty event: %v", err)
	}

	bad, _ := NewSMTP(SMTPConfig{Host: "h", From: "not an address", To: []string{"me@example.com"}})
	if _, err := bad.message(feeder.Event{}); err == nil {
		t.Error("expected invalid from address error")
	}
}
