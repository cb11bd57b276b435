package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campaign-console/internal/crmapi"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingRefresher) Refresh(context.Context) ([]crmapi.Campaign, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, c.err
}

func (c *countingRefresher) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func run(t *testing.T, r Refresher, triggers chan string, interval time.Duration) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenAndRefresh(ctx, r, triggers, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestListenAndRefresh(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		err      error
		trigger  bool
		min, max int
	}{
		{"startup only", 0, nil, false, 1, 1},
		{"trigger after debounce", 0, nil, true, 2, 2},
		{"interval ticks", 20 * time.Millisecond, nil, false, 3, 100},
		{"errors keep running", 20 * time.Millisecond, errors.New("down"), false, 3, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &countingRefresher{err: tt.err}
			triggers := make(chan string, 1)
			stop := run(t, r, triggers, tt.interval)

			time.Sleep(debounce + 50*time.Millisecond)
			if tt.trigger {
				Notify(triggers, "created")
				time.Sleep(50 * time.Millisecond)
			}
			stop()

			got := r.Calls()
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestListenAndRefresh_DebouncesBursts(t *testing.T) {
	r := &countingRefresher{}
	triggers := make(chan string, 4)
	for i := 0; i < 4; i++ {
		Notify(triggers, "burst")
	}
	stop := run(t, r, triggers, 0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.Calls(), "burst waits for the debounce window")

	time.Sleep(debounce + 50*time.Millisecond)
	stop()
	assert.Equal(t, 2, r.Calls(), "burst collapses into one trailing refresh")
}

func TestListenAndRefresh_TriggerInsideWindowNotLost(t *testing.T) {
	r := &countingRefresher{}
	triggers := make(chan string, 1)
	stop := run(t, r, triggers, 0)

	time.Sleep(20 * time.Millisecond)
	Notify(triggers, "created c2")
	time.Sleep(debounce + 50*time.Millisecond)
	stop()

	assert.Equal(t, 2, r.Calls())
}

func TestNotify_NeverBlocks(t *testing.T) {
	triggers := make(chan string, 1)
	Notify(triggers, "a")
	Notify(triggers, "b")
	assert.Equal(t, "a", <-triggers)
}
