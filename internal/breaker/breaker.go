// Package breaker isolates failing providers behind per-provider circuit
// breakers.
package breaker

import (
	"sync"
	"time"
)

// Mode is the breaker state.
type Mode string

const (
	Closed   Mode = "CLOSED"
	Open     Mode = "OPEN"
	HalfOpen Mode = "HALF_OPEN"
)

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           `koanf:"failure_threshold" json:"failureThreshold"`
	Cooldown         time.Duration `koanf:"cooldown" json:"cooldown"`
	SuccessThreshold int           `koanf:"success_threshold" json:"successThreshold"`
}

// DefaultConfig returns threshold 3, cooldown 60s, success threshold 1.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, Cooldown: 60 * time.Second, SuccessThreshold: 1}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	ID                string    `json:"id"`
	Mode              Mode      `json:"mode"`
	Failures          int       `json:"failures"`
	HalfOpenSuccesses int       `json:"halfOpenSuccesses"`
	LastFailure       time.Time `json:"lastFailure,omitempty"`
	Config            Config    `json:"config"`
}

// TransitionHook observes mode changes. It is called without the breaker lock.
type TransitionHook func(id string, from, to Mode)

// Breaker is a CLOSED/OPEN/HALF_OPEN state machine for one provider.
//
// While HALF_OPEN only one probe is let through at a time. A probe that never
// reports back frees its permit after one cooldown.
type Breaker struct {
	id   string
	cfg  Config
	now  func() time.Time
	hook TransitionHook

	mu                sync.Mutex
	mode              Mode
	failures          int
	halfOpenSuccesses int
	lastFailure       time.Time
	probing           bool
	probeStarted      time.Time
}

// New creates a closed breaker. Zero config fields take their defaults.
func New(id string, cfg Config, now func() time.Time, hook TransitionHook) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{id: id, cfg: cfg.withDefaults(), now: now, hook: hook, mode: Closed}
}

// ID returns the provider id.
func (b *Breaker) ID() string { return b.id }

// IsOpen reports whether calls must be skipped. Once the cooldown has elapsed
// the call moves an OPEN breaker to HALF_OPEN and admits the caller as the probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	now := b.now()
	from := b.mode
	open := true
	switch b.mode {
	case Closed:
		open = false
	case Open:
		if now.Sub(b.lastFailure) >= b.cfg.Cooldown {
			b.mode = HalfOpen
			b.halfOpenSuccesses = 0
			b.startProbe(now)
			open = false
		}
	case HalfOpen:
		if !b.probing || now.Sub(b.probeStarted) >= b.cfg.Cooldown {
			b.startProbe(now)
			open = false
		}
	}
	to := b.mode
	b.mu.Unlock()

	b.notify(from, to)
	return open
}

func (b *Breaker) startProbe(now time.Time) {
	b.probing = true
	b.probeStarted = now
}

// RecordSuccess registers a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.mode
	switch b.mode {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probing = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.mode = Closed
			b.failures = 0
			b.halfOpenSuccesses = 0
		}
	}
	to := b.mode
	b.mu.Unlock()

	b.notify(from, to)
}

// RecordFailure registers a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.mode
	now := b.now()
	switch b.mode {
	case Closed:
		b.failures++
		b.lastFailure = now
		if b.failures >= b.cfg.FailureThreshold {
			b.mode = Open
		}
	case HalfOpen, Open:
		// failure count stays pinned so the next cooldown starts fresh
		b.mode = Open
		b.failures = b.cfg.FailureThreshold
		b.lastFailure = now
		b.probing = false
		b.halfOpenSuccesses = 0
	}
	to := b.mode
	b.mu.Unlock()

	b.notify(from, to)
}

// Release gives back a HALF_OPEN probe permit for a call that ended without
// a verdict, e.g. because the caller gave up. Counters are left untouched.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.mode == HalfOpen {
		b.probing = false
	}
	b.mu.Unlock()
}

// Reset forces CLOSED with all counters zeroed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.mode
	b.mode = Closed
	b.failures = 0
	b.halfOpenSuccesses = 0
	b.lastFailure = time.Time{}
	b.probing = false
	b.mu.Unlock()

	b.notify(from, Closed)
}

// Status returns a snapshot.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		ID:                b.id,
		Mode:              b.mode,
		Failures:          b.failures,
		HalfOpenSuccesses: b.halfOpenSuccesses,
		LastFailure:       b.lastFailure,
		Config:            b.cfg,
	}
}

func (b *Breaker) notify(from, to Mode) {
	if from != to && b.hook != nil {
		b.hook(b.id, from, to)
	}
}
