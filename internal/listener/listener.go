// Package listener keeps the console's campaign history fresh.
package listener

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-console/internal/crmapi"
)

const debounce = 200 * time.Millisecond

type Refresher interface {
	Refresh(ctx context.Context) ([]crmapi.Campaign, error)
}

// ListenAndRefresh refreshes history once at start, then on every interval
// tick and whenever a reason arrives on triggers. Triggers that arrive within
// the debounce window of the last refresh collapse into one trailing refresh
// when the window closes. A zero interval disables the ticker. It returns
// when ctx is done.
func ListenAndRefresh(ctx context.Context, r Refresher, triggers <-chan string, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	log.Info().Dur("interval", interval).Msg("history refresher started")

	var (
		lastRefresh time.Time
		pending     string
		trailing    *time.Timer
		fire        <-chan time.Time
	)
	defer func() {
		if trailing != nil {
			trailing.Stop()
		}
	}()

	refresh := func(reason string) {
		lastRefresh = time.Now()
		list, err := r.Refresh(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("reason", reason).Msg("history refresh failed")
			}
			return
		}
		log.Debug().Str("reason", reason).Int("campaigns", len(list)).Msg("history refreshed")
	}

	refresh("startup")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("history refresher stopped")
			return
		case reason, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			wait := debounce - time.Since(lastRefresh)
			if wait <= 0 && fire == nil {
				refresh(reason)
				continue
			}
			pending = reason
			if fire == nil {
				trailing = time.NewTimer(max(wait, 0))
				fire = trailing.C
			}
		case <-fire:
			fire = nil
			refresh(pending)
		case <-tick:
			refresh("interval")
		}
	}
}

// Notify queues a refresh without blocking; a full queue already has one
// pending.
func Notify(triggers chan<- string, reason string) {
	select {
	case triggers <- reason:
	default:
	}
}
