package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(t *testing.T) {
	t.Helper()
	old := waitFunc
	waitFunc = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { waitFunc = old })
}

func TestDownload_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("user agent = %q", got)
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	body, err := New().Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestDownload_RetriesThenSucceeds(t *testing.T) {
	noSleep(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := New().Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(body) != "ok" || calls.Load() != 3 {
		t.Errorf("body = %q after %d calls", body, calls.Load())
	}
}

func TestDownload_GivesUp(t *testing.T) {
	noSleep(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Download(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v, want StatusError 404", err)
	}
	if calls.Load() != DefaultAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), DefaultAttempts)
	}
}

func TestDownload_ForbiddenFallsBackToEmptyUserAgent(t *testing.T) {
	noSleep(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if _, ok := r.Header["User-Agent"]; ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("let in"))
	}))
	defer srv.Close()

	body, err := New().Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(body) != "let in" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != DefaultAttempts+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), DefaultAttempts+1)
	}
}

func TestDownload_CanceledContext(t *testing.T) {
	noSleep(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Download(ctx, srv.URL); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestDownload_BackoffStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New().Download(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("download took %v, backoff ignored cancellation", elapsed)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if err := wait(context.Background(), time.Millisecond); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestDownload_BodyTooLarge(t *testing.T) {
	noSleep(t)
	old := maxBodyBytes
	maxBodyBytes = 8
	t.Cleanup(func() { maxBodyBytes = old })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/exact" {
			_, _ = w.Write([]byte(strings.Repeat("x", 8)))
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 9)))
	}))
	defer srv.Close()

	_, err := New().Download(context.Background(), srv.URL+"/big")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, oversized body must not be retried", calls.Load())
	}

	body, err := New().Download(context.Background(), srv.URL+"/exact")
	if err != nil || len(body) != 8 {
		t.Errorf("body at the limit: len=%d err=%v", len(body), err)
	}
}

func TestIsForbidden(t *testing.T) {
	if !IsForbidden(&StatusError{StatusCode: 403}) {
		t.Error("403 should be forbidden")
	}
	if IsForbidden(&StatusError{StatusCode: 404}) {
		t.Error("404 is not forbidden")
	}
	if IsForbidden(nil) {
		t.Error("nil is not forbidden")
	}
}
