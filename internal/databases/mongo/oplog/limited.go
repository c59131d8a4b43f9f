package oplog

import (
	"context"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"golang.org/x/time/rate"
)

// NewLimitedApplyFunc throttles applyFn, every op takes one limiter token.
// Nil limiter disables throttling.
func NewLimitedApplyFunc(applyFn ApplyFunc, limiter *rate.Limiter) ApplyFunc {
	if limiter == nil {
		return applyFn
	}
	return func(ctx context.Context, ops []models.OplogEntry) error {
		burst := limiter.Burst()
		if burst < 1 {
			burst = 1
		}
		for left := len(ops); left > 0; left -= burst {
			n := left
			if n > burst {
				n = burst
			}
			if err := limiter.WaitN(ctx, n); err != nil {
				return err
			}
		}
		return applyFn(ctx, ops)
	}
}
