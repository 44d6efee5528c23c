package engine

import (
	"math/rand"
	"sync"
	"time"
)

// maxProgressIncrement bounds a single simulated progress tick. The record
// itself clamps cumulative progress at the ceiling, so the simulator only has
// to keep individual increments modest.
const maxProgressIncrement = 15.0

// progressSimulator fabricates an incremental progress estimate for exactly
// one running pipeline while its real result is pending. It owns a single
// goroutine; Stop is idempotent and waits for that goroutine to exit, so a
// stopped simulator can never tick again.
type progressSimulator struct {
	interval time.Duration
	advance  func(delta float64)

	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

// startProgressSimulator launches the ticker goroutine. advance is called
// with a random bounded increment on every tick.
func startProgressSimulator(interval time.Duration, advance func(delta float64)) *progressSimulator {
	sim := &progressSimulator{
		interval: interval,
		advance:  advance,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go sim.run()
	return sim
}

func (sim *progressSimulator) run() {
	defer close(sim.finished)

	ticker := time.NewTicker(sim.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sim.done:
			return
		case <-ticker.C:
			sim.advance(rand.Float64() * maxProgressIncrement)
		}
	}
}

// Stop cancels the simulator and blocks until its goroutine has exited.
func (sim *progressSimulator) Stop() {
	sim.stopOnce.Do(func() {
		close(sim.done)
	})
	<-sim.finished
}
