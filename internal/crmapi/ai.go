package crmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"campaign-console/internal/segment"
)

// ParseSegment turns a free-text audience description into a rule set.
// The returned rules have passed segment.Decode; a shape the grammar does
// not accept comes back as a *segment.DecodeError.
func (c *Client) ParseSegment(ctx context.Context, description string) (segment.RuleSet, error) {
	if strings.TrimSpace(description) == "" {
		return segment.RuleSet{}, ErrDescriptionRequired
	}
	var out struct {
		Rules json.RawMessage `json:"rules"`
	}
	req := map[string]string{"description": description}
	if err := c.do(ctx, "ai_parse_segment", http.MethodPost, "/ai/parse-segment", req, &out); err != nil {
		return segment.RuleSet{}, err
	}
	rs, err := segment.Decode(out.Rules)
	if err != nil {
		return segment.RuleSet{}, fmt.Errorf("crmapi: parsed rules rejected: %w", err)
	}
	return rs, nil
}

// GenerateMessages asks for message suggestions for a campaign objective
// and audience description.
func (c *Client) GenerateMessages(ctx context.Context, objective, audience string) ([]string, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, ErrNameRequired
	}
	var out struct {
		Suggestions []string `json:"suggestions"`
		Messages    []string `json:"messages"`
	}
	req := map[string]string{"objective": objective, "audience": audience}
	if err := c.do(ctx, "ai_generate_messages", http.MethodPost, "/ai/generate-messages", req, &out); err != nil {
		return nil, err
	}
	if out.Suggestions != nil {
		return out.Suggestions, nil
	}
	if out.Messages != nil {
		return out.Messages, nil
	}
	return []string{}, nil
}

// AutoTag asks for tags describing the campaign. audience is the rule set
// rendered as JSON text.
func (c *Client) AutoTag(ctx context.Context, name, description, audience string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	var out struct {
		Tags []string `json:"tags"`
	}
	req := map[string]string{"name": name, "description": description, "audience": audience}
	if err := c.do(ctx, "ai_auto_tag", http.MethodPost, "/ai/auto-tag", req, &out); err != nil {
		return nil, err
	}
	if out.Tags == nil {
		return []string{}, nil
	}
	return out.Tags, nil
}
