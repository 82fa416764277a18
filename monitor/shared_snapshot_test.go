package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/monitor"
)

type blockingSnapshot struct {
	rec     *recorder
	started chan struct{}
	release chan struct{}
}

func (s *blockingSnapshot) Update(context.Context) error {
	s.rec.record("update")
	close(s.started)
	<-s.release
	return nil
}

func TestSharedSnapshot_CoalescesChainMonitors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	inner := &blockingSnapshot{rec: rec, started: make(chan struct{}), release: make(chan struct{})}
	shared := monitor.NewSharedSnapshot(inner, time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- shared.Update(context.Background())
	}()
	<-inner.started
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- shared.Update(context.Background())
		}()
	}
	close(inner.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, rec.count("update"))

	require.NoError(t, shared.Update(context.Background()))
	require.Equal(t, 1, rec.count("update"))
}

func TestSharedSnapshot_Refresh(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	inner := &fakeSnapshot{rec: rec, errs: []error{errBoom}}
	shared := monitor.NewSharedSnapshot(inner, 0)

	require.ErrorIs(t, shared.Update(context.Background()), errBoom)
	require.NoError(t, shared.Update(context.Background()))
	require.NoError(t, shared.Update(context.Background()))
	require.Equal(t, 3, rec.count("update"))

	failing := monitor.NewSharedSnapshot(&fakeSnapshot{rec: &recorder{}, errs: []error{errBoom}}, time.Minute)
	require.ErrorIs(t, failing.Update(context.Background()), errBoom)
	require.NoError(t, failing.Update(context.Background()))
}
