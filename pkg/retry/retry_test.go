package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // predictable tests
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	base := errors.New("schema violation")
	err := Do(context.Background(), testConfig(), func() error {
		attempts++
		return NonRetryable(base)
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxAttempts = 5

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		return errors.New("keep failing")
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), testConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}
