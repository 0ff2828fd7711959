package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("connection reset")
	errFatal = errors.New("constraint violation")
)

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func fastPolicy(attempts uint) Policy {
	return Policy{Attempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	log := zerolog.Nop()
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy(5), log, "test", isFlaky, func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the attempt ceiling", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy(4), log, "test", isFlaky, func() error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 4, calls)
	})

	t.Run("fatal errors surface without retry", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy(5), log, "test", isFlaky, func() error {
			calls++
			return errFatal
		})
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops waiting when the context ends", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		p := Policy{Attempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour}
		calls := 0
		err := Do(cctx, p, log, "test", isFlaky, func() error {
			calls++
			cancel()
			return errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero policy still attempts once", func(t *testing.T) {
		calls := 0
		err := Do(ctx, Policy{}, log, "test", isFlaky, func() error {
			calls++
			return errFatal
		})
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
	})
}
