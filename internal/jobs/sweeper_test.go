package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExpirer struct {
	mu    sync.Mutex
	calls int
	ttls  []time.Duration
	actor string
	err   error
}

func (f *fakeExpirer) ExpireOffers(_ context.Context, olderThan time.Duration, actorID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ttls = append(f.ttls, olderThan)
	f.actor = actorID
	return 1, f.err
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeperTicks(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewSweeper(exp, time.Hour, 10*time.Millisecond, quiet())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return exp.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, time.Hour, exp.ttls[0])
	assert.Equal(t, SweeperActor, exp.actor)
}

func TestSweeperDisabledWithoutTTL(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewSweeper(exp, 0, time.Millisecond, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
	assert.Zero(t, exp.count())
}

func TestSweepOnceLogsErrors(t *testing.T) {
	exp := &fakeExpirer{err: errors.New("db down")}
	s := NewSweeper(exp, time.Minute, 0, quiet())
	assert.Equal(t, 1, s.SweepOnce(context.Background()))
}

func TestSweeperStopsWithContext(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewSweeper(exp, time.Hour, time.Hour, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
}
