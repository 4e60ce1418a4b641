// Package status answers read-only queries about the monitored target.
package status

import (
	"time"

	"github.com/hazz-dev/sitewatch/internal/history"
	"github.com/hazz-dev/sitewatch/internal/probe"
)

// DefaultHistoryLimit is used when the caller does not ask for a limit.
const DefaultHistoryLimit = 100

// State is the reported health of the target.
type State string

const (
	StateUp      State = "up"
	StateDown    State = "down"
	StateUnknown State = "unknown"
)

// Source is the read side of the history store.
type Source interface {
	Snapshot() history.Snapshot
	Recent(limit int) []probe.Outcome
}

// Current describes the latest known state. Outcome is nil while State is
// StateUnknown.
type Current struct {
	State         State
	Outcome       *probe.Outcome
	UptimePercent float64 // over the retained window
	Retained      int
}

// Service exposes Status and History over a Source. All methods are pure
// reads and safe for concurrent use.
type Service struct {
	target string
	source Source
}

// New returns a Service for target backed by source.
func New(target string, source Source) *Service {
	return &Service{target: target, source: source}
}

// Target returns the monitored URL.
func (s *Service) Target() string {
	return s.target
}

// Status returns the current outcome, or StateUnknown before the first check.
func (s *Service) Status() Current {
	snap := s.source.Snapshot()
	if snap.Current == nil {
		return Current{State: StateUnknown}
	}
	cur := Current{
		State:         StateDown,
		Outcome:       snap.Current,
		UptimePercent: uptime(snap.Outcomes),
		Retained:      len(snap.Outcomes),
	}
	if snap.Current.Up {
		cur.State = StateUp
	}
	return cur
}

// History returns up to limit outcomes, most recent first. A limit of zero or
// less means DefaultHistoryLimit.
func (s *Service) History(limit int) []probe.Outcome {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.source.Recent(limit)
}

// LastChecked returns when the last outcome was recorded.
func (c Current) LastChecked() (time.Time, bool) {
	if c.Outcome == nil {
		return time.Time{}, false
	}
	return c.Outcome.CheckedAt, true
}

func uptime(outcomes []probe.Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	up := 0
	for _, o := range outcomes {
		if o.Up {
			up++
		}
	}
	return float64(up) / float64(len(outcomes)) * 100
}
