// Package sched drives registered triggers on their configured intervals.
// It is the in-process stand-in for the workflow engine's scheduler: one
// evaluation at a time per trigger, emitted batches delivered on a channel.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/pollwatch/internal/model"
)

// State represents the current state of a trigger's evaluation.
type State int

const (
	Idle State = iota
	Running
	Errored
)

// Status holds the evaluation state for a single trigger.
type Status struct {
	Trigger string
	State   State
	LastRun time.Time
	Err     error
}

// Runner is one schedulable trigger instance.
type Runner interface {
	Name() string
	RunTick(ctx context.Context) (*model.BatchEvent, error)
}

// tickTimeout bounds a single evaluation, covering every page fetch of
// the tick's enumeration.
const tickTimeout = 2 * time.Minute

// entry holds a registered runner, its interval, and its own refresh
// channel. Refresh channels are per-entry so a request for one trigger
// can never be consumed and dropped by another trigger's loop.
type entry struct {
	runner    Runner
	interval  time.Duration
	refreshCh chan struct{}
}

// Poller runs each registered trigger on its own interval and delivers
// emitted batch events on a shared channel.
type Poller struct {
	entries  []entry
	statuses map[string]*Status
	eventCh  chan model.BatchEvent
	stopCh   chan struct{}
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// New creates a Poller.
func New(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		statuses: make(map[string]*Status),
		eventCh:  make(chan model.BatchEvent, 16),
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Register adds a trigger to the polling set. Must be called before Start.
func (p *Poller) Register(r Runner, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entry{
		runner:    r,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
	})
	p.statuses[r.Name()] = &Status{Trigger: r.Name(), State: Idle}
}

// Events returns the channel on which emitted batches are delivered.
func (p *Poller) Events() <-chan model.BatchEvent {
	return p.eventCh
}

// Start launches one polling goroutine per registered trigger. Each
// performs an immediate first evaluation, then ticks on its interval.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	entries := make([]entry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	for _, e := range entries {
		go p.poll(e)
	}
}

// Stop halts all polling goroutines. In-flight ticks finish; their
// persistence happens once, at the end, so an aborted tick leaves prior
// state intact.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh requests an immediate evaluation of the named trigger. A
// request that arrives while one is already pending coalesces with it.
func (p *Poller) Refresh(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.runner.Name() != name {
			continue
		}
		select {
		case e.refreshCh <- struct{}{}:
		default:
		}
	}
}

// RefreshAll requests an immediate evaluation of every trigger.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		select {
		case e.refreshCh <- struct{}{}:
		default:
		}
	}
}

// Statuses returns the current evaluation status of all triggers.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// poll runs the evaluation loop for a single trigger.
func (p *Poller) poll(e entry) {
	interval := e.interval
	if interval <= 0 {
		interval = 120 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.runTick(e)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runTick(e)
		case <-e.refreshCh:
			p.runTick(e)
		}
	}
}

// runTick performs one evaluation and delivers any emitted batch.
func (p *Poller) runTick(e entry) {
	name := e.runner.Name()
	p.setStatus(name, Running, nil)

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	event, err := e.runner.RunTick(ctx)
	if err != nil {
		p.setStatus(name, Errored, err)
		p.logger.Error("trigger evaluation failed",
			slog.String("trigger", name),
			slog.String("error", err.Error()),
		)
		return
	}

	p.setStatus(name, Idle, nil)

	if event == nil {
		return
	}

	select {
	case p.eventCh <- *event:
	default:
		// Drop rather than block the poller on a slow consumer.
		p.logger.Warn("event channel full, dropping batch",
			slog.String("trigger", name),
			slog.Int("count", event.Count),
		)
	}
}

// setStatus updates the evaluation status for a trigger.
func (p *Poller) setStatus(name string, s State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}

	status.State = s
	status.Err = err
	if s == Idle && err == nil {
		status.LastRun = time.Now()
	}
}
