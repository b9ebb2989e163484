// Package progress coalesces updates from many concurrent download workers
// into monotonic, UI-consumable snapshots. Producers only enqueue; a single
// consumer goroutine owns all mutable state and is the only writer of the
// published snapshot.
package progress

import "sync"

// Gauge identifies one of the four independent progress gauges.
type Gauge int

const (
	GaugeBinary Gauge = iota
	GaugeAssets
	GaugeLibraries
	GaugeRuntime
	numGauges
)

// Snapshot is an immutable view of install progress. Values are 0-100.
type Snapshot struct {
	InstallID string
	Valid     bool
	Binary    int
	Assets    int
	Libraries int
	Runtime   int
}

// update is a value-type message; the channel never carries pointers, so the
// hot producer path allocates nothing.
type update struct {
	gauge Gauge
	value int
	reset bool
}

// Aggregator merges concurrent gauge updates for one installation.
// Per-gauge values only move forward: each incoming value is merged with
// max(current, incoming), so out-of-order delivery from racing producers
// cannot publish a regression.
type Aggregator struct {
	installID string
	observer  func(Snapshot)
	updates   chan update
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates an Aggregator and starts its consumer goroutine. observer is
// invoked from the consumer with a fresh snapshot after every applied
// update; it must not block for long.
func New(installID string, observer func(Snapshot)) *Aggregator {
	a := &Aggregator{
		installID: installID,
		observer:  observer,
		updates:   make(chan update, 256),
		done:      make(chan struct{}),
	}
	go a.consume()
	return a
}

// Set enqueues a gauge update. Safe to call from any goroutine; a no-op
// after Close.
func (a *Aggregator) Set(g Gauge, value int) {
	a.enqueue(update{gauge: g, value: value})
}

// Reset zeroes all gauges and marks the snapshot valid. Used once at the
// start of an install.
func (a *Aggregator) Reset() {
	a.enqueue(update{reset: true})
}

func (a *Aggregator) enqueue(u update) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.updates <- u:
	case <-a.done:
	}
}

// Close stops the consumer. Buffered updates may be discarded; no snapshot
// is published after Close begins.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.done)
}

func (a *Aggregator) consume() {
	gauges := make([]int, numGauges)
	valid := false

	for {
		select {
		case <-a.done:
			return
		case u := <-a.updates:
			if u.reset {
				for i := range gauges {
					gauges[i] = 0
				}
				valid = true
			} else if u.value > gauges[u.gauge] {
				gauges[u.gauge] = u.value
			}

			// Re-check shutdown before publishing so a Close that raced
			// the dequeue wins.
			select {
			case <-a.done:
				return
			default:
			}

			if a.observer != nil {
				a.observer(Snapshot{
					InstallID: a.installID,
					Valid:     valid,
					Binary:    gauges[GaugeBinary],
					Assets:    gauges[GaugeAssets],
					Libraries: gauges[GaugeLibraries],
					Runtime:   gauges[GaugeRuntime],
				})
			}
		}
	}
}
