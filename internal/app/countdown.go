package app

import (
	"context"
	"time"
)

// Ticker is the recurring timer behind a session countdown.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type clockTicker struct {
	t *time.Ticker
}

// NewClockTicker wraps time.Ticker.
func NewClockTicker(d time.Duration) Ticker {
	return clockTicker{t: time.NewTicker(d)}
}

func (c clockTicker) C() <-chan time.Time    { return c.t.C }
func (c clockTicker) Reset(d time.Duration) { c.t.Reset(d) }
func (c clockTicker) Stop()                 { c.t.Stop() }

// runCountdown ticks the session once per interval until the run finishes, is
// replaced, or ctx is canceled. A selection re-arms the ticker so the next
// question gets a full interval before its first tick.
func runCountdown(ctx context.Context, session *Session, run uint64, every time.Duration, newTicker func(time.Duration) Ticker) {
	ticker := newTicker(every)
	defer ticker.Stop()

	advanced := session.advancedSignal()
	for {
		select {
		case <-ctx.Done():
			return
		case <-advanced:
			if !session.Running() || session.currentRun() != run {
				return
			}
			ticker.Reset(every)
		case <-ticker.C():
			if _, err := session.tickRun(run); err != nil {
				return
			}
			if !session.Running() {
				return
			}
		}
	}
}
