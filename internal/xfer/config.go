package xfer

import (
	"i2cflash/internal/bus"
	"log/slog"
	"time"
)

// Mode picks where the executor runs.
type Mode uint8
const (
	// ModeNonBlocking hands every request to a worker goroutine and returns at once.
	ModeNonBlocking Mode = iota
	// ModeBlocking runs the request on the caller's goroutine.
	ModeBlocking
)

func (m Mode) String() string {
	if m == ModeBlocking {
		return "blocking"
	}
	return "non-blocking"
}

// RetryPolicy bounds the attempts spent on one page transaction.
type RetryPolicy struct {
	// MaxAttempts is the number of tries per transaction, 0 means no limit
	MaxAttempts int

	// Backoff is slept between attempts
	Backoff time.Duration
}

type Config struct {
	Mode 			Mode
	Retry 			RetryPolicy
	Logger			*slog.Logger
	Indicator		bus.Indicator

	// PollInterval is how often Wait looks at the slot
	PollInterval	time.Duration
}

// A page write takes the chip up to 5ms, during which it doesn't acknowledge. 64 tries
// 500us apart comfortably covers that.
func defaultConfig() Config {
	return Config{
		Mode:			ModeNonBlocking,
		Retry:			RetryPolicy{MaxAttempts: 64, Backoff: 500 * time.Microsecond},
		Indicator:		bus.NopIndicator{},
		PollInterval:	time.Millisecond,
	}
}

type Option func(*Config)

func WithMode(m Mode) Option {
	return func(c *Config) {
		c.Mode = m
	}
}

// WithRetry sets the per-transaction attempt limit and the pause between attempts.
// Negative values are ignored.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Config) {
		if maxAttempts >= 0 {
			c.Retry.MaxAttempts = maxAttempts
		}
		if backoff >= 0 {
			c.Retry.Backoff = backoff
		}
	}
}

// WithUnboundedRetry retries every transaction until it succeeds. A dead bus then shows
// up as a device that stays busy forever.
func WithUnboundedRetry() Option {
	return func(c *Config) {
		c.Retry.MaxAttempts = 0
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithIndicator(i bus.Indicator) Option {
	return func(c *Config) {
		if i != nil {
			c.Indicator = i
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}
