package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options - Exponential backoff settings
type Options struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// SanctionOptions - Retries for role and timeout changes on the platform
func SanctionOptions() Options {
	return Options{
		MaxElapsedTime:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetries:      3,
	}
}

// GatewayOptions - Retries for opening the gateway session
func GatewayOptions() Options {
	return Options{
		MaxElapsedTime:  2 * time.Minute,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxRetries:      5,
	}
}

// Permanent - Stop retrying and return err as is
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do - Run operation until it succeeds, returns a Permanent error, or the options run out
func Do(ctx context.Context, operation func() error, opts Options) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
