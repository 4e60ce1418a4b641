package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober checks one target by walking its profiles in order until one succeeds.
type Prober struct {
	target   string
	profiles []Profile
	client   Doer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Prober.
type Option func(*Prober)

// WithClient replaces the HTTP client used for attempts.
func WithClient(d Doer) Option {
	return func(p *Prober) { p.client = d }
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source used for timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// NewHTTPClient returns a client for probing. Certificate verification and
// redirect following are explicit choices of the caller.
func NewHTTPClient(insecureSkipVerify, followRedirects bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureSkipVerify}
	client := &http.Client{Transport: transport}
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// New creates a Prober for target.
func New(target string, profiles []Profile, opts ...Option) *Prober {
	p := &Prober{
		target:   target,
		profiles: profiles,
		client:   NewHTTPClient(false, true),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the probed URL.
func (p *Prober) Target() string {
	return p.target
}

// Profiles returns the ordered profiles.
func (p *Prober) Profiles() []Profile {
	return p.profiles
}

type attempt struct {
	profile    string
	ok         bool
	statusCode int
	latency    time.Duration
	kind       Kind
	msg        string
}

// Probe runs one cycle. It never returns an error: every failure becomes a
// down Outcome. Cancelling ctx stops further profiles from being tried but
// lets an attempt that has already started run to its own timeout.
func (p *Prober) Probe(ctx context.Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s%v", CriticalPrefix, r)
			p.logger.Error("probe cycle failed", "target", p.target, "error", msg)
			out = Down(p.now(), KindUnexpected, msg)
		}
	}()

	p.logger.Info("checking website", "target", p.target)

	if len(p.profiles) == 0 {
		return Down(p.now(), KindUnexpected, CriticalPrefix+"no probe profiles configured")
	}
	if _, err := url.ParseRequestURI(p.target); err != nil {
		return Down(p.now(), KindUnexpected, fmt.Sprintf("%sinvalid target: %v", CriticalPrefix, err))
	}

	var last attempt
	for i, prof := range p.profiles {
		if i > 0 && ctx.Err() != nil {
			p.logger.Debug("probe cancelled before next profile", "profile", prof.Name)
			break
		}
		a := p.try(ctx, prof)
		if a.ok {
			p.logger.Info("website is up",
				"target", p.target,
				"profile", a.profile,
				"status_code", a.statusCode,
				"response_time", a.latency,
			)
			return Outcome{
				CheckedAt:  p.now(),
				Up:         true,
				Latency:    a.latency,
				StatusCode: a.statusCode,
				Profile:    a.profile,
			}
		}
		p.logger.Debug("probe attempt failed", "profile", prof.Name, "kind", a.kind, "error", a.msg)
		last = a
	}

	p.logger.Error("all access methods failed", "target", p.target, "last_error", last.msg)
	out = Down(p.now(), last.kind, last.msg)
	out.Profile = last.profile
	return out
}

func (p *Prober) try(ctx context.Context, prof Profile) (a attempt) {
	a.profile = prof.Name
	defer func() {
		if r := recover(); r != nil {
			a = attempt{profile: prof.Name, kind: KindUnexpected, msg: fmt.Sprintf("unexpected error: %v", r)}
		}
	}()

	timeout := prof.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, p.target, nil)
	if err != nil {
		a.kind = KindUnexpected
		a.msg = fmt.Sprintf("creating request: %v", err)
		return a
	}
	for k, vs := range prof.Headers {
		req.Header[k] = append([]string(nil), vs...)
	}

	start := p.now()
	resp, err := p.client.Do(req)
	a.latency = p.now().Sub(start)
	if err != nil {
		a.kind, a.msg = classify(err)
		return a
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		a.kind = KindProtocol
		a.msg = fmt.Sprintf("status code: %d", resp.StatusCode)
		return a
	}
	a.ok = true
	a.statusCode = resp.StatusCode
	return a
}
