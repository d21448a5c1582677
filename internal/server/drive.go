package server

import (
	"context"
	"sync"
	"time"
)

type driveTarget interface {
	driveTick(ctx context.Context, delta time.Duration)
}

type tickerFactory func(time.Duration) (<-chan time.Time, func())

type timeSource func() time.Time

// driveEngine calls its target once per tick with the elapsed time since the
// previous tick.
type driveEngine struct {
	target    driveTarget
	tick      time.Duration
	wg        sync.WaitGroup
	newTicker tickerFactory
	now       timeSource
}

func defaultTickerFactory() tickerFactory {
	return func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
}

func newDriveEngine(target driveTarget, tick time.Duration) *driveEngine {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &driveEngine{
		target:    target,
		tick:      tick,
		newTicker: defaultTickerFactory(),
		now:       time.Now,
	}
}

func (e *driveEngine) Start(ctx context.Context) {
	if e == nil || e.target == nil {
		return
	}
	e.wg.Add(1)
	go e.run(ctx)
}

func (e *driveEngine) run(ctx context.Context) {
	defer e.wg.Done()
	if e.newTicker == nil {
		e.newTicker = defaultTickerFactory()
	}
	if e.now == nil {
		e.now = time.Now
	}

	tickerC, stop := e.newTicker(e.tick)
	defer stop()

	last := e.now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tickerC:
			delta := now.Sub(last)
			if delta <= 0 || delta > 10*e.tick {
				delta = e.tick
			}
			last = now
			e.target.driveTick(ctx, delta)
		}
	}
}

func (e *driveEngine) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}
