package orb

import (
	"context"
	"sync"
	"time"

	"github.com/MegaGrindStone/polaris/internal/models"
)

// DefaultStep is how much animation time advances per frame.
const DefaultStep = 0.05

// Driver runs the per-frame animation loop for one orb. Each call to Start replaces the running loop, so at most
// one loop is alive and a new state always begins at phase zero.
type Driver struct {
	interval time.Duration
	step     float64
	render   func(Frame)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewDriver creates a driver that calls render once per interval. A non-positive interval falls back to
// roughly sixty frames per second.
func NewDriver(interval time.Duration, render func(Frame)) *Driver {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Driver{
		interval: interval,
		step:     DefaultStep,
		render:   render,
	}
}

// Start cancels any running loop and starts animating state. The first frame is rendered immediately. Start
// does nothing after Close.
func (d *Driver) Start(state models.OrbState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done

	go d.loop(ctx, state, done)
}

// Stop cancels the running loop and waits for it to return. It is safe to call on a stopped driver.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
}

// Close stops the driver for good. Later calls to Start are ignored, so a state change racing with shutdown
// cannot revive the loop.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.stopLocked()
}

func (d *Driver) stopLocked() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil
}

func (d *Driver) loop(ctx context.Context, state models.OrbState, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	t := 0.0
	for {
		t += d.step
		d.render(At(state, t))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
