package crmapi

import (
	"encoding/json"
	"strings"
	"time"

	"campaign-console/internal/segment"
)

// Draft is the campaign metadata a view submits for preview or creation.
type Draft struct {
	Name        string
	Description string
	Rules       segment.RuleSet
	Tags        []string
}

type createRequest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	SegmentRules map[string]any `json:"segmentRules"`
	Preview      bool           `json:"preview,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// Campaign is a campaign record as the service reports it.
type Campaign struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	AudienceSize int       `json:"audienceSize"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

const StatusSent = "sent"

func (c *Campaign) UnmarshalJSON(b []byte) error {
	var raw struct {
		MongoID      string          `json:"_id"`
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		Status       string          `json:"status"`
		AudienceSize *int            `json:"audienceSize"`
		Sent         *int            `json:"sent"`
		Failed       *int            `json:"failed"`
		Tags         []string        `json:"tags"`
		CreatedAt    json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Campaign{
		ID:          raw.MongoID,
		Name:        raw.Name,
		Description: raw.Description,
		Status:      raw.Status,
		Tags:        raw.Tags,
		CreatedAt:   parseTimestamp(raw.CreatedAt),
	}
	if c.ID == "" {
		c.ID = raw.ID
	}
	if raw.AudienceSize != nil {
		c.AudienceSize = *raw.AudienceSize
	}
	if raw.Sent != nil {
		c.Sent = *raw.Sent
	}
	if raw.Failed != nil {
		c.Failed = *raw.Failed
	}
	return nil
}

func (c Campaign) DisplayName() string {
	if strings.TrimSpace(c.Name) == "" {
		return "Untitled"
	}
	return c.Name
}

func (c Campaign) DisplayStatus() string {
	if strings.TrimSpace(c.Status) == "" {
		return "draft"
	}
	return c.Status
}

// AlreadySent reports whether the service has marked the campaign sent.
func (c Campaign) AlreadySent() bool { return strings.EqualFold(c.Status, StatusSent) }

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTimestamp accepts an ISO string or epoch milliseconds. Anything else
// yields the zero time, which sorts after every real timestamp.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
