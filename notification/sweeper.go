package notification

import (
	"context"
	"time"

	. "github.com/branchmux/branchmux/utils/log"
)

// Sweeper runs the retention sweep on a schedule, decoupled from request
// handling. A failed sweep is logged and retried on the next tick.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Start launches the background sweep loop and returns a stop function.
func (s *Sweeper) Start() func(context.Context) error {
	stop := make(chan struct{})
	go s.loop(stop)
	return func(ctx context.Context) error {
		close(stop)
		return nil
	}
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			purged, err := s.engine.CleanupOld(time.Now())
			if err != nil {
				Log.Error("notification sweep failed: ", err)
				continue
			}
			if purged > 0 {
				Log.Info("notification sweep purged rows: ", purged)
			}
		}
	}
}
