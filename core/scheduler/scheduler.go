package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/vehrelay/core/logger"
	"github.com/kilianp07/vehrelay/core/model"
	coremqtt "github.com/kilianp07/vehrelay/core/mqtt"
)

// Schedule defines how many payloads are published and how often.
type Schedule struct {
	// Interval between two publishes. Zero publishes once.
	Interval time.Duration
	// Count limits the number of publishes. Zero means until the context
	// is cancelled when Interval is set.
	Count int
	// StopOnError aborts the run on the first failed publish.
	StopOnError bool
}

// Source produces the payload for the next tick.
type Source func() model.Payload

// Static returns a Source always yielding p.
func Static(p model.Payload) Source {
	return func() model.Payload { return p }
}

// Summary reports the outcome of a run.
type Summary struct {
	Sent    int
	Failed  int
	LastErr error
}

// Validate checks the schedule parameters.
func (s Schedule) Validate() error {
	if s.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func (s Schedule) total() int {
	if s.Interval == 0 {
		if s.Count > 0 {
			return s.Count
		}
		return 1
	}
	return s.Count
}

// Run publishes payloads according to the schedule until it completes or
// ctx is done. The first publish happens immediately. A failed publish is
// logged and counted and the run goes on unless StopOnError is set. Run
// returns the last publish error whenever a publish failed, including when
// the run ends with ctx.
func Run(ctx context.Context, s Schedule, src Source, pub coremqtt.PayloadPublisher, log logger.Logger) (Summary, error) {
	var sum Summary
	if err := s.Validate(); err != nil {
		return sum, err
	}
	total := s.total()

	var ticker *time.Ticker
	if s.Interval > 0 {
		ticker = time.NewTicker(s.Interval)
		defer ticker.Stop()
	}

	for i := 0; total == 0 || i < total; i++ {
		if i > 0 {
			if ticker == nil {
				if ctx.Err() != nil {
					break
				}
			} else {
				select {
				case <-ctx.Done():
					return sum, sum.err()
				case <-ticker.C:
				}
			}
		}
		p := src()
		rec, err := pub.Publish(ctx, p)
		if err != nil {
			sum.Failed++
			sum.LastErr = err
			log.Errorf("publish %d failed: %v", i+1, err)
			if s.StopOnError || ctx.Err() != nil {
				return sum, err
			}
			continue
		}
		sum.Sent++
		log.Infow("published vehicle parameters", map[string]any{
			"topic":          rec.Topic,
			"bytes":          rec.Bytes,
			"attempts":       rec.Attempts,
			"latency_ms":     rec.Latency.Milliseconds(),
			"speed":          p.Speed,
			"cruise_control": p.CruiseControl,
		})
	}
	return sum, sum.err()
}

func (s Summary) err() error {
	if s.Failed > 0 {
		return s.LastErr
	}
	return nil
}
