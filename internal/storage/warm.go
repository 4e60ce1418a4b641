package storage

import (
	"context"
	"fmt"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

// Appender receives restored outcomes in chronological order.
type Appender interface {
	Append(o probe.Outcome)
}

// WarmStart replays the newest limit outcomes into dst, oldest first, and
// returns how many were restored.
func (d *DB) WarmStart(ctx context.Context, dst Appender, limit int) (int, error) {
	recent, err := d.Recent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("loading outcomes for warm start: %w", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		dst.Append(recent[i])
	}
	return len(recent), nil
}
