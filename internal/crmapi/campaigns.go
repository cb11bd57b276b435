package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// PreviewAudience asks the service how many customers the draft's rules
// select. Nothing is persisted. An empty name fails before any request.
func (c *Client) PreviewAudience(ctx context.Context, d Draft) (int, error) {
	if strings.TrimSpace(d.Name) == "" {
		return 0, ErrNameRequired
	}
	req := createRequest{
		Name:         d.Name,
		Description:  d.Description,
		SegmentRules: d.Rules.Serialize(),
		Preview:      true,
	}
	var out struct {
		AudienceSize *int `json:"audienceSize"`
	}
	if err := c.do(ctx, "preview", http.MethodPost, "/campaigns/create", req, &out); err != nil {
		return 0, err
	}
	if out.AudienceSize == nil {
		return 0, nil
	}
	return *out.AudienceSize, nil
}

// CreateCampaign persists the draft as a campaign on the service.
func (c *Client) CreateCampaign(ctx context.Context, d Draft) (Campaign, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Campaign{}, ErrNameRequired
	}
	req := createRequest{
		Name:         d.Name,
		Description:  d.Description,
		SegmentRules: d.Rules.Serialize(),
		Tags:         d.Tags,
	}
	var out map[string]json.RawMessage
	if err := c.do(ctx, "create", http.MethodPost, "/campaigns/create", req, &out); err != nil {
		return Campaign{}, err
	}
	return createdRecord(out), nil
}

// createdRecord finds the campaign in a create response, which may wrap it
// under "campaign" or "data" or return it bare.
func createdRecord(out map[string]json.RawMessage) Campaign {
	for _, key := range []string{"campaign", "data"} {
		if raw, ok := out[key]; ok {
			var cmp Campaign
			if err := json.Unmarshal(raw, &cmp); err == nil {
				return cmp
			}
		}
	}
	b, _ := json.Marshal(out)
	var cmp Campaign
	_ = json.Unmarshal(b, &cmp)
	return cmp
}

// History lists previously created campaigns, most recent first. A body
// whose data member is not a list yields an empty list, and entries that
// cannot be read are skipped.
func (c *Client) History(ctx context.Context) ([]Campaign, error) {
	var body json.RawMessage
	if err := c.do(ctx, "history", http.MethodGet, "/campaigns/history", nil, &body); err != nil {
		return nil, err
	}

	list := []Campaign{}
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(body, &out) != nil {
		return list, nil
	}
	var items []json.RawMessage
	data := bytes.TrimSpace(out.Data)
	if len(data) == 0 || data[0] != '[' || json.Unmarshal(data, &items) != nil {
		return list, nil
	}
	for i, item := range items {
		var cmp Campaign
		if err := json.Unmarshal(item, &cmp); err != nil {
			log.Debug().Err(err).Int("index", i).Msg("skip unreadable history entry")
			continue
		}
		list = append(list, cmp)
	}
	SortByCreatedDesc(list)
	return list, nil
}

// SortByCreatedDesc orders campaigns newest first; ties keep their order.
func SortByCreatedDesc(list []Campaign) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// SendCampaign triggers dispatch of the campaign's messages and reports the
// counts the service sent and failed. Failures are not retried.
func (c *Client) SendCampaign(ctx context.Context, id string) (SendResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SendResult{}, ErrIDRequired
	}
	var out struct {
		Campaign SendResult `json:"campaign"`
	}
	if err := c.do(ctx, "send", http.MethodPost, "/campaigns/"+url.PathEscape(id)+"/send", nil, &out); err != nil {
		return SendResult{}, err
	}
	return out.Campaign, nil
}

// CurrentUser returns the user the session belongs to.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, "whoami", http.MethodGet, "/auth", nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}
