package probe

import (
	"net/http"
	"time"

	"github.com/hazz-dev/sitewatch/internal/config"
)

// DefaultTimeout applies to profiles that do not set their own.
const DefaultTimeout = 5 * time.Second

// Profile is one request identity. Profiles are tried in slice order.
type Profile struct {
	Name    string
	Headers http.Header
	Timeout time.Duration
}

// NewProfile builds a Profile from a flat header map.
func NewProfile(name string, headers map[string]string, timeout time.Duration) Profile {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Profile{Name: name, Headers: h, Timeout: timeout}
}

// ProfilesFromConfig converts configured profiles, preserving order.
func ProfilesFromConfig(cfg []config.Profile) []Profile {
	out := make([]Profile, 0, len(cfg))
	for _, p := range cfg {
		out = append(out, NewProfile(p.Name, p.Headers, p.Timeout.Duration))
	}
	return out
}

// Budget is the worst-case duration of one probe cycle.
func Budget(profiles []Profile) time.Duration {
	var total time.Duration
	for _, p := range profiles {
		total += p.Timeout
	}
	return total
}
