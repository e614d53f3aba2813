package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/cinefetch/progress"
)

func testClient(t *testing.T, host string) (*Client, *progress.ErrorCounter) {
	t.Helper()
	errs := progress.NewErrorCounter()
	c := NewClient(Options{
		Host:        host,
		Bearer:      "test-token",
		RPS:         1000,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
	}, errs)
	return c, errs
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "fr" {
			t.Errorf("language = %q", got)
		}
		w.Write([]byte(`{"id":603}`))
	}))
	defer srv.Close()

	c, errs := testClient(t, srv.URL)
	body, err := c.Get(context.Background(), "/movie/603", map[string][]string{"language": {"fr"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"id":603}` {
		t.Fatalf("body = %s", body)
	}
	if errs.Total() != 0 {
		t.Fatalf("errors = %d, want 0", errs.Total())
	}
}

func TestGetNotFoundIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, errs := testClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/movie/1", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1 (404 must not be retried)", n)
	}
	if errs.Snapshot()["404"] != 1 {
		t.Fatalf("counter = %v", errs.Snapshot())
	}
}

func TestGetUnauthorizedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/movie/1", nil)
	var auth *AuthError
	if !errors.As(err, &auth) {
		t.Fatalf("err = %v, want *AuthError", err)
	}
}

func TestGetRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, errs := testClient(t, srv.URL)
	if _, err := c.Get(context.Background(), "/movie/1", nil); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
	if errs.Total() != 0 {
		t.Fatalf("a retried-then-successful call must not count errors, got %v", errs.Snapshot())
	}
}

func TestGetHonorsRetryAfter(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if first.CompareAndSwap(true, false) {
			w.Header().Set("Retry-After", "0.2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL)
	start := time.Now()
	if _, err := c.Get(context.Background(), "/movie/1", nil); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("retried after %v, want >= 200ms (Retry-After)", elapsed)
	}
}

func TestGetRateLimitBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, errs := testClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/movie/1", nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want the full budget of 3", n)
	}
	if errs.Snapshot()["HTTP_429_exceeded_retries"] != 1 {
		t.Fatalf("counter = %v", errs.Snapshot())
	}
}

func TestGetOtherStatusIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, errs := testClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/movie/1", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 500 {
		t.Fatalf("err = %v, want *StatusError 500", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	if errs.Snapshot()["HTTP_500"] != 1 {
		t.Fatalf("counter = %v", errs.Snapshot())
	}
}

func TestGetNetworkErrorExhaustsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // nothing listens anymore

	c, errs := testClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/movie/1", nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if errs.Snapshot()["network_error"] != 1 {
		t.Fatalf("counter = %v", errs.Snapshot())
	}
}

func TestGetContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := testClient(t, srv.URL)
	if _, err := c.Get(ctx, "/movie/1", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
