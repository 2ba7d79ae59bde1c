package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCount returns a liveness check that fails when the number of
// goroutines exceeds threshold, which usually indicates a leak.
func GoroutineCount(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("too many goroutines: %d > %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPause returns a liveness check that fails when the most recent garbage
// collection pause exceeded threshold.
func GCMaxPause(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		pause := time.Duration(stats.PauseNs[(stats.NumGC+255)%256])
		if pause > threshold {
			return errors.Errorf("last GC pause too long: %s > %s", pause, threshold)
		}
		return nil
	}
}

// Pinger is satisfied by pgxpool.Pool and database handles alike.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabasePing returns a readiness check that pings the database.
func DatabasePing(db Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping database")
		}
		return nil
	}
}
