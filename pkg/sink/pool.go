package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	gobreaker "github.com/sony/gobreaker/v2"
)

// DefaultPriority is used for stores without an explicit priority.
const DefaultPriority = 100

// Store is one destination in a Pool.
type Store struct {
	Name  string
	Putter
	// Priority orders failover, highest first. Zero means DefaultPriority.
	Priority int
	// Settings overrides the pool's breaker settings for this store.
	Settings *gobreaker.Settings
}

// AllUnavailableError is returned when no store accepted an object.
type AllUnavailableError struct {
	LastError error
}

func (e *AllUnavailableError) Error() string {
	if e.LastError != nil {
		return fmt.Sprintf("sink: all stores unavailable, last error: %v", e.LastError)
	}
	return "sink: all stores unavailable"
}

func (e *AllUnavailableError) Unwrap() error {
	return e.LastError
}

// permanentError marks a failure that says nothing about store health.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as caused by the object rather than the store, so it
// neither trips a breaker nor triggers failover.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// DefaultBreakerSettings trips a store after three consecutive failures.
// Permanent errors and context cancellation count as successes.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
	}
}

// Pool commits objects to the highest priority store whose breaker is
// closed, round-robin within a priority tier. When a store fails and its
// breaker trips, the next store is tried with the body rewound.
type Pool struct {
	mu       sync.Mutex
	stores   []Store
	breakers []*gobreaker.CircuitBreaker[struct{}]
	tiers    [][]int
	cursor   map[int]int
}

// NewPool creates a pool over stores. Breakers use defaults unless a store
// carries its own settings.
func NewPool(stores []Store, defaults gobreaker.Settings) *Pool {
	sorted := make([]Store, len(stores))
	copy(sorted, stores)
	for i := range sorted {
		if sorted[i].Priority == 0 {
			sorted[i].Priority = DefaultPriority
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	p := &Pool{
		stores:   sorted,
		breakers: make([]*gobreaker.CircuitBreaker[struct{}], len(sorted)),
		cursor:   make(map[int]int),
	}
	for i, s := range sorted {
		settings := defaults
		if s.Settings != nil {
			settings = *s.Settings
		}
		if settings.Name == "" {
			settings.Name = s.Name
		}
		p.breakers[i] = gobreaker.NewCircuitBreaker[struct{}](settings)

		if i == 0 || sorted[i-1].Priority != s.Priority {
			p.tiers = append(p.tiers, nil)
		}
		p.tiers[len(p.tiers)-1] = append(p.tiers[len(p.tiers)-1], i)
	}
	return p
}

// Put commits obj to the first store that accepts it.
func (p *Pool) Put(ctx context.Context, obj Object, body io.ReadSeeker) error {
	var lastErr error
	tried := make(map[int]bool, len(p.stores))
	for {
		idx := p.next(tried)
		if idx < 0 {
			return &AllUnavailableError{LastError: lastErr}
		}
		tried[idx] = true
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("sink: rewind object: %w", err)
		}

		breaker := p.breakers[idx]
		_, err := breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.stores[idx].Put(ctx, obj, body)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lastErr = err
			continue
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		// A plain failure moves on to the next store whether or not the
		// breaker tripped; the object is still in hand.
		lastErr = err
	}
}

// next returns the next untried store whose breaker is not open, or -1.
func (p *Pool) next(tried map[int]bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for t, tier := range p.tiers {
		start := p.cursor[t]
		for i := range tier {
			pos := (start + i) % len(tier)
			idx := tier[pos]
			if tried[idx] || p.breakers[idx].State() == gobreaker.StateOpen {
				continue
			}
			p.cursor[t] = (pos + 1) % len(tier)
			return idx
		}
	}
	return -1
}

// AllUnavailable reports whether every store's breaker is open.
func (p *Pool) AllUnavailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.breakers {
		if b.State() != gobreaker.StateOpen {
			return false
		}
	}
	return true
}

// Len returns the number of stores.
func (p *Pool) Len() int {
	return len(p.stores)
}
