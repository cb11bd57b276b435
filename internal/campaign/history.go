package campaign

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"campaign-console/internal/crmapi"
	"campaign-console/internal/storage"
)

var ErrAlreadySent = errors.New("campaign: already sent")

type HistoryAPI interface {
	History(ctx context.Context) ([]crmapi.Campaign, error)
	SendCampaign(ctx context.Context, id string) (crmapi.SendResult, error)
}

// History is the campaign-history view. Concurrent refreshes share one
// request; the list itself lives in the store.
type History struct {
	api   HistoryAPI
	store *storage.Cache
	group singleflight.Group

	mu      sync.Mutex
	sending map[string]bool
	status  Status
}

func NewHistory(api HistoryAPI, store *storage.Cache) *History {
	if store == nil {
		store = storage.NewCache()
	}
	return &History{api: api, store: store, sending: map[string]bool{}}
}

// Campaigns returns the last fetched list, most recent first.
func (h *History) Campaigns() []crmapi.Campaign { return h.store.GetCampaigns() }

// UpdatedAt is when the list was last fetched; zero before the first fetch.
func (h *History) UpdatedAt() time.Time { return h.store.UpdatedAt() }

func (h *History) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *History) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// Refresh fetches the list again. A failure leaves the previous list in
// place and is reported in the status slot.
//
// Concurrent callers share one fetch, which runs detached from any single
// caller; a caller whose ctx ends stops waiting without failing the others.
func (h *History) Refresh(ctx context.Context) ([]crmapi.Campaign, error) {
	ch := h.group.DoChan("history", func() (any, error) {
		list, err := h.api.History(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		h.store.UpdateCampaigns(list)
		return list, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		h.setStatus(describeFailure(res.Err, failureTexts{
			fallback:  "Failed to fetch campaigns",
			transport: "Failed to fetch campaigns",
		}))
		return nil, res.Err
	}
	list := res.Val.([]crmapi.Campaign)
	log.Debug().Int("campaigns", len(list)).Bool("shared", res.Shared).Msg("history refreshed")
	return append([]crmapi.Campaign(nil), list...), nil
}

// Send dispatches a campaign and refreshes the list. Campaigns already
// marked sent are refused locally, and a campaign is never sent twice
// concurrently. Failed messages are reported, not retried.
func (h *History) Send(ctx context.Context, id string) (crmapi.SendResult, error) {
	if cmp, ok := h.store.Find(id); ok && cmp.AlreadySent() {
		h.setStatus(failure("Campaign already sent"))
		return crmapi.SendResult{}, ErrAlreadySent
	}

	h.mu.Lock()
	if h.sending[id] {
		h.mu.Unlock()
		return crmapi.SendResult{}, ErrBusy
	}
	h.sending[id] = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sending, id)
		h.mu.Unlock()
	}()

	res, err := h.api.SendCampaign(ctx, id)
	if err != nil {
		h.setStatus(describeFailure(err, failureTexts{
			fallback:  "Failed to send campaign",
			transport: "Failed to send campaign",
		}))
		return crmapi.SendResult{}, err
	}
	log.Info().Str("campaign_id", id).Int("sent", res.Sent).Int("failed", res.Failed).Msg("campaign sent")
	h.setStatus(success("Sent: %d, Failed: %d", res.Sent, res.Failed))

	status := h.Status()
	if _, err := h.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after send")
		h.setStatus(status)
	}
	return res, nil
}
