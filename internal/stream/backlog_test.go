package stream_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/myysophia/replay-ingest/internal/tests/mocks"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountBacklog(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryStore()
	id1 := "aaaaaaaaaaaaaaaaaaaaaa"
	id2 := "bbbbbbbbbbbbbbbbbbbbbb"
	for _, key := range []string{
		"raw/2024/03/07/09/05/" + id1 + ".power.log",
		"raw/2024/03/07/09/05/" + id1 + ".descriptor.json",
		"raw/2024/03/07/09/06/" + id2 + ".power.log",
		"failed/" + id1 + "/2024-03-07-09-05.power.log",
	} {
		require.NoError(t, store.Put(ctx, "raw-bucket", key, []byte("x")))
	}

	n, err := stream.CountBacklog(ctx, store, "raw-bucket")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store.FailHook = func(op, _, _ string) error {
		if op == "list" {
			return errors.New("unavailable")
		}
		return nil
	}
	_, err = stream.CountBacklog(ctx, store, "raw-bucket")
	assert.Error(t, err)
}

type fakePromAPI struct {
	v1.API
	value model.Value
	err   error
	query string
}

func (f *fakePromAPI) Query(_ context.Context, query string, _ time.Time, _ ...v1.Option) (model.Value, v1.Warnings, error) {
	f.query = query
	return f.value, nil, f.err
}

func TestPrometheusDuration(t *testing.T) {
	ctx := context.Background()

	t.Run("uses query result", func(t *testing.T) {
		api := &fakePromAPI{value: model.Vector{{Value: 2.5}}}
		d := stream.NewPrometheusDurationWithAPI(api, "replay_ingest", 4)

		avg, err := d.AverageProcessingSeconds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2.5, avg)
		assert.Contains(t, api.query, "replay_ingest_ingest_processing_duration_seconds_sum")
	})

	t.Run("falls back", func(t *testing.T) {
		for _, api := range []*fakePromAPI{
			{err: errors.New("connection refused")},
			{value: model.Vector{}},
			{value: model.Vector{{Value: model.SampleValue(math.NaN())}}},
		} {
			avg, err := stream.NewPrometheusDurationWithAPI(api, "replay_ingest", 4).AverageProcessingSeconds(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4.0, avg)
		}
	})

	t.Run("static", func(t *testing.T) {
		avg, err := stream.StaticDuration(3).AverageProcessingSeconds(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3.0, avg)
	})
}
