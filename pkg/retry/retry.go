package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`   // Maximum number of attempts (0 = run once); ignored by Schedule
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // Initial delay between attempts
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // Maximum delay between attempts
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`       // Backoff multiplier; <= 1 keeps the delay fixed
	AddJitter    bool          `json:"add_jitter" yaml:"add_jitter"`       // Add up to 25% randomness
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Fixed returns a config that retries on a constant cadence.
func Fixed(interval time.Duration) Config {
	return Config{
		InitialDelay: interval,
		MaxDelay:     interval,
		Multiplier:   1.0,
	}
}

// Validate rejects configurations that cannot produce a sane delay sequence.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.New("retry: InitialDelay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("retry: MaxDelay cannot be negative")
	}
	if c.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return nil
}

// nextDelay grows delay by the multiplier, capped at MaxDelay, with overflow protection.
func (c Config) nextDelay(delay time.Duration) time.Duration {
	if c.Multiplier <= 1 {
		return delay
	}
	multiplier := c.Multiplier
	if multiplier > 1000 {
		multiplier = 1000
	}
	next := float64(delay) * multiplier
	if next > float64(c.MaxDelay) || next > float64(time.Duration(1<<63-1)) {
		return c.MaxDelay
	}
	return time.Duration(next)
}

func jittered(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	randMu.Lock()
	jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
	randMu.Unlock()
	return delay + jitter
}

// Do executes fn with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleepDuration := delay
		if cfg.AddJitter {
			sleepDuration = jittered(delay)
		}

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = cfg.nextDelay(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Schedule is a tick-driven backoff. It never sleeps: the owner accumulates
// elapsed time and compares it against Interval.
type Schedule struct {
	cfg      Config
	delay    time.Duration
	interval time.Duration
	failures int
}

// NewSchedule creates a schedule starting at cfg.InitialDelay.
func NewSchedule(cfg Config) *Schedule {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	s := &Schedule{cfg: cfg}
	s.Reset()
	return s
}

// Interval returns the wait that must elapse before the next attempt.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// Failures returns the number of consecutive failures since the last Reset.
func (s *Schedule) Failures() int {
	return s.failures
}

// Failed records a failed attempt and grows the interval.
func (s *Schedule) Failed() {
	s.failures++
	if s.failures > 1 {
		s.delay = s.cfg.nextDelay(s.delay)
	}
	s.interval = s.delay
	if s.cfg.AddJitter {
		s.interval = jittered(s.delay)
	}
}

// Reset returns the schedule to its initial interval.
func (s *Schedule) Reset() {
	s.failures = 0
	s.delay = s.cfg.InitialDelay
	s.interval = s.delay
}
