package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var signIn = Rule{Name: "sign-in", Limit: 5, Window: time.Hour}

func TestMemory_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Admit(ctx, "sign-in:1.2.3.4", signIn)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	clock.Advance(10 * time.Minute)

	d, err := l.Admit(ctx, "sign-in:1.2.3.4", signIn)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "sign-in", d.Rule)
	assert.Equal(t, 50*time.Minute, d.RetryAfter)

	clock.Advance(50 * time.Minute)

	d, err = l.Admit(ctx, "sign-in:1.2.3.4", signIn)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestMemory_RejectionsDoNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	rule := Rule{Name: "r", Limit: 1, Window: time.Minute}

	d, _ := l.Admit(context.Background(), "k", rule)
	require.True(t, d.Allowed)

	for i := 0; i < 3; i++ {
		clock.Advance(15 * time.Second)
		d, _ = l.Admit(context.Background(), "k", rule)
		assert.False(t, d.Allowed)
	}

	clock.Advance(15 * time.Second)
	d, _ = l.Admit(context.Background(), "k", rule)
	assert.True(t, d.Allowed)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	l := NewMemory()
	rule := Rule{Name: "r", Limit: 1, Window: time.Minute}

	d, _ := l.Admit(context.Background(), "a", rule)
	assert.True(t, d.Allowed)
	d, _ = l.Admit(context.Background(), "b", rule)
	assert.True(t, d.Allowed)
	d, _ = l.Admit(context.Background(), "a", rule)
	assert.False(t, d.Allowed)
}

func TestMemory_ConcurrentAdmitsNeverOverrun(t *testing.T) {
	const (
		workers = 200
		limit   = 17
	)
	l := NewMemory()
	rule := Rule{Name: "general", Limit: limit, Window: time.Hour}

	var admitted, rejected atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := l.Admit(context.Background(), "general:10.0.0.1", rule)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
	assert.Equal(t, int64(workers-limit), rejected.Load())
}

func TestMemory_InvalidRule(t *testing.T) {
	l := NewMemory()
	for _, rule := range []Rule{
		{Limit: 1, Window: time.Second},
		{Name: "r", Window: time.Second},
		{Name: "r", Limit: 1},
	} {
		_, err := l.Admit(context.Background(), "k", rule)
		assert.ErrorIs(t, err, ErrInvalidRule)
	}
}

func TestMemory_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	short := Rule{Name: "short", Limit: 1, Window: time.Minute}
	long := Rule{Name: "long", Limit: 1, Window: time.Hour}

	_, _ = l.Admit(context.Background(), "a", short)
	_, _ = l.Admit(context.Background(), "b", long)
	require.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMemory_RunSweeperStopsWithContext(t *testing.T) {
	l := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		l.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestAdmitAll(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	general := Rule{Name: "general", Limit: 3, Window: 15 * time.Minute}
	strict := Rule{Name: "sign-in", Limit: 2, Window: time.Hour}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := AdmitAll(ctx, l, "1.2.3.4", general, strict)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := AdmitAll(ctx, l, "1.2.3.4", general, strict)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "sign-in", d.Rule)

	// the general window has now seen three requests
	d, err = AdmitAll(ctx, l, "1.2.3.4", general)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "general", d.Rule)

	clock.Advance(15 * time.Minute)

	d, err = AdmitAll(ctx, l, "1.2.3.4", general, strict)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "strict window still closed")
	assert.Equal(t, "sign-in", d.Rule)
}

func TestAdmitAll_NoRules(t *testing.T) {
	d, err := AdmitAll(context.Background(), NewMemory(), "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "sign-in:1.2.3.4", Key(signIn, "1.2.3.4"))
}
