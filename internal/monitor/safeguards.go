package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// safeVisit wraps visit with panic recovery. A recovered panic becomes an
// internal-error visit so the batch keeps going.
func (m *Monitor) safeVisit(ctx context.Context, item types.FollowItem) (visit types.Visit) {
	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)

			m.log.Error().
				Str("url", item.URL).
				Int("hop", item.Hop).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic during visit")

			visit = types.Visit{
				URL:       item.URL,
				Hop:       item.Hop,
				ParentURL: item.ParentURL,
				Kind:      types.KindInternal,
				Error:     fmt.Sprintf("panic during visit: %v", r),
				CheckedAt: time.Now(),
			}
		}
	}()

	return m.visit(ctx, item)
}

// PanicCount returns the number of visits that panicked
func (m *Monitor) PanicCount() int64 {
	return m.panics.Load()
}
