package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJob_InvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	err := s.AddJob("bad", "not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestAddJob_AcceptsCronAndDescriptors(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	require.NoError(t, s.AddJob("nightly", "0 4 * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.AddJob("hourly", "@every 1h", func(context.Context) error { return nil }))
	assert.Equal(t, 2, s.Len())
}

func TestJobsRunAndStopCancelsContext(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	cancelled := make(chan struct{})

	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
		}
		return errors.New("logged, not fatal")
	}))
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	s.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled on Stop")
	}
}
