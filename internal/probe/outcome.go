package probe

import "time"

// Kind classifies why a probe attempt failed.
type Kind string

const (
	KindNone       Kind = ""
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection_failure"
	KindProtocol   Kind = "protocol_failure"
	KindUnexpected Kind = "unexpected_failure"
)

// Error prefixes for failures that are not tied to a single profile.
const (
	CriticalPrefix   = "critical error: "
	MonitoringPrefix = "monitoring error: "
)

// Outcome is the result of one completed probe cycle. It is built once and
// passed around by value.
type Outcome struct {
	CheckedAt  time.Time
	Up         bool
	Latency    time.Duration // zero unless Up
	StatusCode int           // zero when no response was accepted
	Error      string
	Kind       Kind
	Profile    string // profile that produced the final attempt
}

// LatencyMs returns the latency in milliseconds, if the target was up.
func (o Outcome) LatencyMs() (float64, bool) {
	if !o.Up {
		return 0, false
	}
	return float64(o.Latency) / float64(time.Millisecond), true
}

// Status returns "up" or "down".
func (o Outcome) Status() string {
	if o.Up {
		return "up"
	}
	return "down"
}

// Down builds a down Outcome carrying msg. Used for failures outside the
// per-profile loop.
func Down(at time.Time, kind Kind, msg string) Outcome {
	return Outcome{
		CheckedAt: at,
		Kind:      kind,
		Error:     msg,
	}
}
