package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campaign-console/internal/campaign"
	"campaign-console/internal/crmapi"
	"campaign-console/internal/listener"
	"campaign-console/internal/observability"
	"campaign-console/internal/segment"
)

// ConsoleHandler hosts composer views and the shared history view.
type ConsoleHandler struct {
	ctx      context.Context
	api      campaign.API
	history  *campaign.History
	triggers chan<- string

	mu        sync.Mutex
	composers map[string]*campaign.Composer
}

// NewConsoleHandler creates composers under ctx, so cancelling ctx aborts
// their in-flight calls. Created campaigns are announced on triggers.
func NewConsoleHandler(ctx context.Context, api campaign.API, history *campaign.History, triggers chan<- string) *ConsoleHandler {
	return &ConsoleHandler{
		ctx:       ctx,
		api:       api,
		history:   history,
		triggers:  triggers,
		composers: map[string]*campaign.Composer{},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an operation error to the console's HTTP status.
func statusFor(err error) int {
	var verr *segment.ValidationError
	var apiErr *crmapi.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, campaign.ErrNameRequired),
		errors.Is(err, campaign.ErrDescriptionRequired),
		errors.Is(err, campaign.ErrUnknownField),
		errors.Is(err, crmapi.ErrIDRequired),
		errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, campaign.ErrBusy), errors.Is(err, campaign.ErrAlreadySent):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrClosed):
		return http.StatusGone
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

type composerResponse struct {
	ID    string         `json:"id"`
	State campaign.State `json:"state"`
	Error string         `json:"error,omitempty"`
}

func (h *ConsoleHandler) respond(w http.ResponseWriter, id string, c *campaign.Composer, err error) {
	resp := composerResponse{ID: id, State: c.State()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func (h *ConsoleHandler) composer(w http.ResponseWriter, r *http.Request) (string, *campaign.Composer, bool) {
	id := chi.URLParam(r, "id")
	h.mu.Lock()
	c, ok := h.composers[id]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "composer not found")
	}
	return id, c, ok
}

func (h *ConsoleHandler) OpenComposer(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	c := campaign.NewComposer(h.ctx, h.api, campaign.WithOnCreated(func(cmp crmapi.Campaign) {
		listener.Notify(h.triggers, "created "+cmp.ID)
	}))
	h.mu.Lock()
	h.composers[id] = c
	h.mu.Unlock()
	observability.OpenComposers.Inc()
	log.Info().Str("composer", id).Msg("composer opened")
	writeJSON(w, http.StatusCreated, composerResponse{ID: id, State: c.State()})
}

func (h *ConsoleHandler) GetComposer(w http.ResponseWriter, r *http.Request) {
	if id, c, ok := h.composer(w, r); ok {
		h.respond(w, id, c, nil)
	}
}

func (h *ConsoleHandler) CloseComposer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mu.Lock()
	c, ok := h.composers[id]
	delete(h.composers, id)
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "composer not found")
		return
	}
	c.Close()
	observability.OpenComposers.Dec()
	log.Info().Str("composer", id).Msg("composer closed")
	w.WriteHeader(http.StatusNoContent)
}

// CloseAll closes every open composer.
func (h *ConsoleHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.composers {
		c.Close()
		delete(h.composers, id)
		observability.OpenComposers.Dec()
	}
}

func (h *ConsoleHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, id, c, c.SetDetails(body.Name, body.Description))
}

// SetPredicate takes {operator?, value?}. value may be a number or the raw
// text of an input box; text that is not a number is kept as NaN and
// rejected when the rules are submitted.
func (h *ConsoleHandler) SetPredicate(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	var body struct {
		Operator *segment.Operator `json:"operator"`
		Value    json.RawMessage   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u := segment.PredicateUpdate{Operator: body.Operator}
	if len(body.Value) > 0 && string(body.Value) != "null" {
		v := inputValue(body.Value)
		u.Value = &v
	}
	h.respond(w, id, c, c.SetPredicate(segment.Field(chi.URLParam(r, "field")), u))
}

func inputValue(raw json.RawMessage) float64 {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return segment.ParseValue(s)
}

func (h *ConsoleHandler) SetLogic(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	var body struct {
		Logic segment.Logic `json:"logic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, id, c, c.SetLogic(body.Logic))
}

type rowsResponse struct {
	ID    string           `json:"id"`
	Rows  segment.RuleRows `json:"rows"`
	Error string           `json:"error,omitempty"`
}

func (h *ConsoleHandler) GetRows(w http.ResponseWriter, r *http.Request) {
	if id, c, ok := h.composer(w, r); ok {
		writeJSON(w, http.StatusOK, rowsResponse{ID: id, Rows: c.Rows()})
	}
}

// SetRows takes {rows: [{field, operator, value, logic?}]} from the rule
// builder and answers with the resulting rows.
func (h *ConsoleHandler) SetRows(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	var body struct {
		Rows segment.RuleRows `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := c.SetRows(body.Rows)
	resp := rowsResponse{ID: id, Rows: c.Rows()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func (h *ConsoleHandler) ParseSegment(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	_, err := c.ParseSegment(r.Context(), body.Description)
	h.respond(w, id, c, err)
}

func (h *ConsoleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if id, c, ok := h.composer(w, r); ok {
		_, err := c.PreviewAudience(r.Context())
		h.respond(w, id, c, err)
	}
}

func (h *ConsoleHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if id, c, ok := h.composer(w, r); ok {
		_, err := c.FetchSuggestions(r.Context())
		h.respond(w, id, c, err)
	}
}

func (h *ConsoleHandler) Tags(w http.ResponseWriter, r *http.Request) {
	if id, c, ok := h.composer(w, r); ok {
		_, err := c.FetchTags(r.Context())
		h.respond(w, id, c, err)
	}
}

func (h *ConsoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, c, ok := h.composer(w, r)
	if !ok {
		return
	}
	created, err := c.CreateCampaign(r.Context())
	if err != nil {
		h.respond(w, id, c, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		composerResponse
		Campaign crmapi.Campaign `json:"campaign"`
	}{composerResponse{ID: id, State: c.State()}, created})
}

type historyResponse struct {
	Campaigns []crmapi.Campaign  `json:"campaigns"`
	Status    campaign.Status    `json:"status"`
	UpdatedAt *time.Time         `json:"updatedAt,omitempty"`
	Result    *crmapi.SendResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (h *ConsoleHandler) historyState(updatedAt time.Time, err error) historyResponse {
	resp := historyResponse{Campaigns: h.history.Campaigns(), Status: h.history.Status()}
	if resp.Campaigns == nil {
		resp.Campaigns = []crmapi.Campaign{}
	}
	if !updatedAt.IsZero() {
		resp.UpdatedAt = &updatedAt
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (h *ConsoleHandler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.historyState(h.history.UpdatedAt(), nil))
}

func (h *ConsoleHandler) RefreshHistory(w http.ResponseWriter, r *http.Request) {
	_, err := h.history.Refresh(r.Context())
	writeJSON(w, statusFor(err), h.historyState(h.history.UpdatedAt(), err))
}

func (h *ConsoleHandler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := h.history.Send(r.Context(), chi.URLParam(r, "id"))
	resp := h.historyState(h.history.UpdatedAt(), err)
	if err == nil {
		resp.Result = &res
	}
	writeJSON(w, statusFor(err), resp)
}
