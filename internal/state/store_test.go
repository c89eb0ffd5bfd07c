package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/state"
	"github.com/jonesrussell/goharvest/tests/helpers"
)

type checkpoint struct {
	Generation int       `json:"generation"`
	SavedAt    time.Time `json:"saved_at"`
	Healthy    []string  `json:"healthy"`
}

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx := context.Background()

	redis, err := helpers.StartRedis(ctx)
	require.NoError(t, err, "failed to start Redis container")
	defer func() {
		if stopErr := redis.Stop(ctx); stopErr != nil {
			t.Logf("failed to stop Redis container: %v", stopErr)
		}
	}()

	store, err := state.New(state.Config{
		Addr:   redis.Addr,
		Prefix: "goharvest-test",
	})
	require.NoError(t, err)
	defer store.Close()

	t.Run("persist and load", func(t *testing.T) {
		saved := checkpoint{
			Generation: 3,
			SavedAt:    time.Now().UTC().Truncate(time.Second),
			Healthy:    []string{"dc-us-1", "res-uk-2"},
		}
		require.NoError(t, store.Persist(ctx, state.KeyEgressPool, saved))

		var loaded checkpoint
		require.NoError(t, store.Load(ctx, state.KeyEgressPool, &loaded))
		assert.Equal(t, saved, loaded)
	})

	t.Run("overwrite replaces previous value", func(t *testing.T) {
		require.NoError(t, store.Persist(ctx, state.KeyBreakers, checkpoint{Generation: 1}))
		require.NoError(t, store.Persist(ctx, state.KeyBreakers, checkpoint{Generation: 2}))

		var loaded checkpoint
		require.NoError(t, store.Load(ctx, state.KeyBreakers, &loaded))
		assert.Equal(t, 2, loaded.Generation)
	})

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		var loaded checkpoint
		err := store.Load(ctx, "never-written", &loaded)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("delete removes the value", func(t *testing.T) {
		require.NoError(t, store.Persist(ctx, state.KeyPatterns, checkpoint{Generation: 5}))
		require.NoError(t, store.Delete(ctx, state.KeyPatterns))

		var loaded checkpoint
		assert.ErrorIs(t, store.Load(ctx, state.KeyPatterns, &loaded), state.ErrNotFound)
	})

	t.Run("delete of a missing key succeeds", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "never-written"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	_, err := state.New(state.Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
