package probe_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

// stepClock is a manually advanced clock.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedDoer answers each profile according to its User-Agent.
type scriptedDoer struct {
	mu       sync.Mutex
	answers  map[string]func(*http.Request) (*http.Response, error)
	seen     []string
	requests []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	ua := req.Header.Get("User-Agent")
	d.mu.Lock()
	d.seen = append(d.seen, ua)
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	fn, ok := d.answers[ua]
	if !ok {
		return nil, errors.New("no scripted answer")
	}
	return fn(req)
}

func respond(code int) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Body:       http.NoBody,
			Request:    req,
		}, nil
	}
}

func timeoutErr(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: context.DeadlineExceeded}
}

func refusedErr(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: syscall.ECONNREFUSED,
	}}
}

func profiles(names ...string) []probe.Profile {
	out := make([]probe.Profile, 0, len(names))
	for _, n := range names {
		out = append(out, probe.NewProfile(n, map[string]string{"User-Agent": n}, time.Second))
	}
	return out
}

func TestProbe_FallsBackUntilSuccess(t *testing.T) {
	clock := newStepClock()
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first":  timeoutErr,
		"second": refusedErr,
		"third": func(req *http.Request) (*http.Response, error) {
			clock.Advance(42 * time.Millisecond)
			return respond(http.StatusOK)(req)
		},
	}}
	p := probe.New("https://example.com", profiles("first", "second", "third"),
		probe.WithClient(doer), probe.WithClock(clock.Now))

	out := p.Probe(context.Background())
	if !out.Up {
		t.Fatalf("expected up, got down: %s", out.Error)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", out.StatusCode)
	}
	ms, ok := out.LatencyMs()
	if !ok || ms != 42 {
		t.Errorf("expected latency 42ms, got %v (present=%v)", ms, ok)
	}
	if out.Error != "" {
		t.Errorf("expected no error, got %q", out.Error)
	}
	if out.Profile != "third" {
		t.Errorf("expected profile 'third', got %q", out.Profile)
	}
	if strings.Join(doer.seen, ",") != "first,second,third" {
		t.Errorf("unexpected attempt order: %v", doer.seen)
	}
}

func TestProbe_StopsAtFirstSuccess(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first":  respond(http.StatusNoContent),
		"second": respond(http.StatusOK),
	}}
	p := probe.New("https://example.com", profiles("first", "second"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if !out.Up || out.StatusCode != http.StatusNoContent {
		t.Fatalf("expected up with 204, got %+v", out)
	}
	if len(doer.seen) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(doer.seen))
	}
}

func TestProbe_AllFailReportsLastError(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first":  timeoutErr,
		"second": respond(http.StatusForbidden),
		"third":  refusedErr,
	}}
	p := probe.New("https://example.com", profiles("first", "second", "third"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if out.Up {
		t.Fatal("expected down")
	}
	if out.Error != "connection error" {
		t.Errorf("expected last error 'connection error', got %q", out.Error)
	}
	if out.Kind != probe.KindConnection {
		t.Errorf("expected KindConnection, got %q", out.Kind)
	}
	if _, ok := out.LatencyMs(); ok {
		t.Error("expected no latency for down outcome")
	}
	if out.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", out.StatusCode)
	}
}

func TestProbe_LastErrorIsStatusCode(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first":  refusedErr,
		"second": respond(http.StatusServiceUnavailable),
	}}
	p := probe.New("https://example.com", profiles("first", "second"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if out.Error != "status code: 503" {
		t.Errorf("expected 'status code: 503', got %q", out.Error)
	}
	if out.Kind != probe.KindProtocol {
		t.Errorf("expected KindProtocol, got %q", out.Kind)
	}
}

func TestProbe_OtherTransportErrorKeepsMessage(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"only": func(*http.Request) (*http.Response, error) {
			return nil, errors.New("stopped after 10 redirects")
		},
	}}
	p := probe.New("https://example.com", profiles("only"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if out.Error != "stopped after 10 redirects" {
		t.Errorf("expected raw transport message, got %q", out.Error)
	}
	if out.Kind != probe.KindUnexpected {
		t.Errorf("expected KindUnexpected, got %q", out.Kind)
	}
}

func TestProbe_PanickingAttemptFallsThrough(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first":  func(*http.Request) (*http.Response, error) { panic("boom") },
		"second": respond(http.StatusOK),
	}}
	p := probe.New("https://example.com", profiles("first", "second"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if !out.Up {
		t.Fatalf("expected fallback to succeed, got %q", out.Error)
	}
}

func TestProbe_PanickingLastAttempt(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"only": func(*http.Request) (*http.Response, error) { panic("boom") },
	}}
	p := probe.New("https://example.com", profiles("only"), probe.WithClient(doer))

	out := p.Probe(context.Background())
	if out.Error != "unexpected error: boom" {
		t.Errorf("expected 'unexpected error: boom', got %q", out.Error)
	}
}

func TestProbe_NoProfiles(t *testing.T) {
	p := probe.New("https://example.com", nil)
	out := p.Probe(context.Background())
	if out.Up {
		t.Fatal("expected down")
	}
	if !strings.HasPrefix(out.Error, probe.CriticalPrefix) {
		t.Errorf("expected critical prefix, got %q", out.Error)
	}
}

func TestProbe_InvalidTarget(t *testing.T) {
	p := probe.New("not a url", profiles("only"))
	out := p.Probe(context.Background())
	if out.Up || !strings.HasPrefix(out.Error, probe.CriticalPrefix) {
		t.Errorf("expected critical down outcome, got %+v", out)
	}
}

func TestProbe_CancelledContextSkipsRemainingProfiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	doer := &scriptedDoer{answers: map[string]func(*http.Request) (*http.Response, error){
		"first": func(req *http.Request) (*http.Response, error) {
			cancel()
			if err := req.Context().Err(); err != nil {
				t.Errorf("attempt context should outlive the caller's context, got %v", err)
			}
			return respond(http.StatusInternalServerError)(req)
		},
		"second": respond(http.StatusOK),
	}}
	p := probe.New("https://example.com", profiles("first", "second"), probe.WithClient(doer))

	out := p.Probe(ctx)
	if out.Up {
		t.Fatal("expected down after cancellation")
	}
	if len(doer.seen) != 1 {
		t.Errorf("expected one attempt, got %d", len(doer.seen))
	}
	if out.Error != "status code: 500" {
		t.Errorf("expected 'status code: 500', got %q", out.Error)
	}
}

func TestProbe_SendsProfileHeaders(t *testing.T) {
	var mu sync.Mutex
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("User-Agent")+"|"+r.Header.Get("Accept-Language"))
		mu.Unlock()
		if strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ps := []probe.Profile{
		probe.NewProfile("browser", map[string]string{"User-Agent": "Mozilla/5.0", "Accept-Language": "en-US"}, time.Second),
		probe.NewProfile("curl", map[string]string{"User-Agent": "curl/7.64.1"}, time.Second),
	}
	p := probe.New(srv.URL, ps, probe.WithClient(probe.NewHTTPClient(true, true)))

	out := p.Probe(context.Background())
	if !out.Up {
		t.Fatalf("expected up via curl profile, got %q", out.Error)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "Mozilla/5.0|en-US" || got[1] != "curl/7.64.1|" {
		t.Errorf("unexpected headers seen by server: %v", got)
	}
}

func TestProbe_ClosedServerIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	p := probe.New(target, profiles("only"))
	out := p.Probe(context.Background())
	if out.Up {
		t.Fatal("expected down")
	}
	if out.Error != "connection error" {
		t.Errorf("expected 'connection error', got %q", out.Error)
	}
}

func TestProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := probe.New(srv.URL, []probe.Profile{
		probe.NewProfile("slow", nil, 50*time.Millisecond),
	})
	out := p.Probe(context.Background())
	if out.Up {
		t.Fatal("expected down on timeout")
	}
	if out.Error != "request timed out" {
		t.Errorf("expected 'request timed out', got %q", out.Error)
	}
	if out.Kind != probe.KindTimeout {
		t.Errorf("expected KindTimeout, got %q", out.Kind)
	}
}

func TestProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := probe.New(srv.URL+"/old", profiles("only"), probe.WithClient(probe.NewHTTPClient(false, true)))
	out := p.Probe(context.Background())
	if !out.Up || out.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after redirect, got %+v", out)
	}

	p = probe.New(srv.URL+"/old", profiles("only"), probe.WithClient(probe.NewHTTPClient(false, false)))
	out = p.Probe(context.Background())
	if !out.Up || out.StatusCode != http.StatusMovedPermanently {
		t.Errorf("expected 301 without redirects, got %+v", out)
	}
}

func TestProbe_InsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := probe.New(srv.URL, profiles("only"), probe.WithClient(probe.NewHTTPClient(true, true)))
	if out := p.Probe(context.Background()); !out.Up {
		t.Errorf("expected up with verification disabled, got %q", out.Error)
	}

	p = probe.New(srv.URL, profiles("only"), probe.WithClient(probe.NewHTTPClient(false, true)))
	out := p.Probe(context.Background())
	if out.Up {
		t.Fatal("expected down with verification enabled against a self-signed cert")
	}
	if out.Error != "connection error" {
		t.Errorf("expected 'connection error' for a certificate failure, got %q", out.Error)
	}
}

func TestBudget(t *testing.T) {
	ps := []probe.Profile{
		probe.NewProfile("a", nil, 2*time.Second),
		probe.NewProfile("b", nil, 0),
	}
	if got := probe.Budget(ps); got != 2*time.Second+probe.DefaultTimeout {
		t.Errorf("unexpected budget %v", got)
	}
}
