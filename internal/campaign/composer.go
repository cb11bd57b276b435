// Package campaign holds the state of the campaign views: the composer used
// to define and create a campaign, and the history list used to send one.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"campaign-console/internal/cache"
	"campaign-console/internal/crmapi"
	"campaign-console/internal/segment"
)

var (
	ErrNameRequired        = errors.New("campaign: name is required")
	ErrDescriptionRequired = errors.New("campaign: audience description is required")
	ErrUnknownField        = errors.New("campaign: unknown segment field")
	ErrBusy                = errors.New("campaign: operation already in flight")
	ErrClosed              = errors.New("campaign: view closed")
)

// API is the part of the CRM API the composer talks to.
type API interface {
	PreviewAudience(ctx context.Context, d crmapi.Draft) (int, error)
	CreateCampaign(ctx context.Context, d crmapi.Draft) (crmapi.Campaign, error)
	ParseSegment(ctx context.Context, description string) (segment.RuleSet, error)
	GenerateMessages(ctx context.Context, objective, audience string) ([]string, error)
	AutoTag(ctx context.Context, name, description, audience string) ([]string, error)
}

type operation string

const (
	opPreview     operation = "preview"
	opCreate      operation = "create"
	opParse       operation = "parse"
	opSuggestions operation = "suggestions"
	opTags        operation = "tags"
)

// Composer is the state of one campaign-creation view. It is owned by the
// view instance that created it and mutated only through its methods.
//
// Remote operations may overlap, but each one refuses to start again while
// its previous call is in flight. The status slot shows whichever operation
// finished last. Close cancels every in-flight call and drops its result.
type Composer struct {
	api       API
	onCreated func(crmapi.Campaign)

	ctx    context.Context
	cancel context.CancelFunc

	rules cache.Snapshot[segment.RuleSet]

	mu           sync.Mutex
	closed       bool
	inFlight     map[operation]bool
	name         string
	description  string
	audienceSize *int
	suggestions  []string
	tags         []string
	status       Status
}

type ComposerOption func(*Composer)

// WithOnCreated registers a callback run after a campaign is created.
func WithOnCreated(fn func(crmapi.Campaign)) ComposerOption {
	return func(c *Composer) { c.onCreated = fn }
}

func NewComposer(parent context.Context, api API, opts ...ComposerOption) *Composer {
	ctx, cancel := context.WithCancel(parent)
	c := &Composer{
		api:      api,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: map[operation]bool{},
	}
	c.rules.Store(segment.Defaults())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State is a point-in-time copy of the view.
type State struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Rules        segment.RuleSet `json:"rules"`
	AudienceSize *int            `json:"audienceSize"`
	Suggestions  []string        `json:"suggestions"`
	Tags         []string        `json:"tags"`
	Status       Status          `json:"status"`
	Busy         []string        `json:"busy"`
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Name:        c.name,
		Description: c.description,
		Rules:       c.Rules(),
		Suggestions: append([]string{}, c.suggestions...),
		Tags:        append([]string{}, c.tags...),
		Status:      c.status,
		Busy:        []string{},
	}
	if c.audienceSize != nil {
		n := *c.audienceSize
		s.AudienceSize = &n
	}
	for op := range c.inFlight {
		s.Busy = append(s.Busy, string(op))
	}
	sort.Strings(s.Busy)
	return s
}

// Rules returns the current rule set without taking the state lock.
func (c *Composer) Rules() segment.RuleSet {
	rs, _ := c.rules.Load()
	return rs
}

func (c *Composer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Composer) SetDetails(name, description string) error {
	return c.commit(func() {
		c.name = name
		c.description = description
	})
}

// SetPredicate applies a partial operator/value update to one field.
func (c *Composer) SetPredicate(f segment.Field, u segment.PredicateUpdate) error {
	if !f.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return c.commit(func() {
		c.rules.Store(c.Rules().WithPredicate(f, u))
	})
}

func (c *Composer) SetLogic(l segment.Logic) error {
	if !l.Valid() {
		return &segment.ValidationError{Reason: fmt.Sprintf("logic must be AND or OR, got %q", l)}
	}
	return c.commit(func() {
		c.rules.Store(c.Rules().WithLogic(l))
	})
}

// ReplaceAll swaps in a whole rule set once it passes validation.
func (c *Composer) ReplaceAll(rs segment.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	return c.commit(func() { c.rules.Store(rs) })
}

// Rows returns the rules in rule-builder form.
func (c *Composer) Rows() segment.RuleRows { return c.Rules().Rows() }

// SetRows applies rows edited in the rule builder. Fields without a row
// keep their current predicate.
func (c *Composer) SetRows(rr segment.RuleRows) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	rs, err := rr.RuleSet(c.Rules())
	if err != nil {
		return err
	}
	c.rules.Store(rs)
	return nil
}

// Close cancels in-flight calls. Results that arrive afterwards are dropped.
func (c *Composer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// PreviewAudience asks the service for the number of customers the current
// rules select.
func (c *Composer) PreviewAudience(ctx context.Context) (int, error) {
	ctx, done, err := c.begin(ctx, opPreview)
	if err != nil {
		return 0, err
	}
	defer done()

	d, err := c.draft("Campaign name is required for preview")
	if err != nil {
		return 0, err
	}
	size, err := c.api.PreviewAudience(ctx, d)
	if err != nil {
		return 0, c.remoteFailure(err, failureTexts{
			fallback:  "Failed to preview audience",
			transport: "Failed to preview audience",
		})
	}
	return size, c.commit(func() {
		c.audienceSize = &size
		c.status = success("Audience previewed: %d customers", size)
	})
}

// CreateCampaign persists the campaign. On success the view resets to a
// blank form with default rules; on failure everything is kept for
// correction.
func (c *Composer) CreateCampaign(ctx context.Context) (crmapi.Campaign, error) {
	ctx, done, err := c.begin(ctx, opCreate)
	if err != nil {
		return crmapi.Campaign{}, err
	}
	defer done()

	d, err := c.draft("Campaign name is required")
	if err != nil {
		return crmapi.Campaign{}, err
	}
	created, err := c.api.CreateCampaign(ctx, d)
	if err != nil {
		return crmapi.Campaign{}, c.remoteFailure(err, failureTexts{
			fallback:  "Failed to create campaign",
			transport: "Failed to create campaign",
		})
	}
	err = c.commit(func() {
		c.name, c.description = "", ""
		c.audienceSize = nil
		c.suggestions, c.tags = nil, nil
		c.rules.Store(segment.Defaults())
		c.status = success("Campaign created successfully!")
	})
	if err != nil {
		return created, err
	}
	log.Info().Str("campaign_id", created.ID).Str("name", d.Name).Msg("campaign created")
	if c.onCreated != nil {
		c.onCreated(created)
	}
	return created, nil
}

// ParseSegment replaces the rules with the AI's reading of a free-text
// audience description. The rules are only replaced when they validate.
func (c *Composer) ParseSegment(ctx context.Context, description string) (segment.RuleSet, error) {
	ctx, done, err := c.begin(ctx, opParse)
	if err != nil {
		return segment.RuleSet{}, err
	}
	defer done()

	if strings.TrimSpace(description) == "" {
		return segment.RuleSet{}, c.precondition(ErrDescriptionRequired, "Describe the audience first")
	}
	rs, err := c.api.ParseSegment(ctx, description)
	if err == nil {
		err = rs.Validate()
	}
	if err != nil {
		return segment.RuleSet{}, c.remoteFailure(err, failureTexts{
			apiPrefix: "Failed to parse segment: ",
			fallback:  "Failed to parse segment",
			transport: "AI parsing error",
		})
	}
	return rs, c.commit(func() {
		c.rules.Store(rs)
		c.status = success("Segment rules updated from AI input")
	})
}

// FetchSuggestions asks for message suggestions for the campaign name and
// the current audience.
func (c *Composer) FetchSuggestions(ctx context.Context) ([]string, error) {
	ctx, done, err := c.begin(ctx, opSuggestions)
	if err != nil {
		return nil, err
	}
	defer done()

	c.mu.Lock()
	name := c.name
	c.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return nil, c.precondition(ErrNameRequired, "Campaign name required for AI suggestions")
	}
	rules := c.Rules()
	if err := c.checkRules(rules); err != nil {
		return nil, err
	}
	msgs, err := c.api.GenerateMessages(ctx, name, rules.Describe())
	if err != nil {
		return nil, c.remoteFailure(err, failureTexts{
			apiPrefix: "Failed to fetch AI suggestions: ",
			fallback:  "Failed to fetch AI suggestions",
			transport: "Failed to fetch AI suggestions",
		})
	}
	return msgs, c.commit(func() {
		c.suggestions = msgs
		c.status = success("AI suggested %d messages", len(msgs))
	})
}

// FetchTags asks for tags describing the campaign; they are sent along when
// the campaign is created.
func (c *Composer) FetchTags(ctx context.Context) ([]string, error) {
	ctx, done, err := c.begin(ctx, opTags)
	if err != nil {
		return nil, err
	}
	defer done()

	c.mu.Lock()
	name, description := c.name, c.description
	c.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return nil, c.precondition(ErrNameRequired, "Campaign name required for AI tagging")
	}
	rules := c.Rules()
	if err := c.checkRules(rules); err != nil {
		return nil, err
	}
	audience, err := json.Marshal(rules.Serialize())
	if err != nil {
		return nil, c.precondition(err, "Invalid segment rules")
	}
	tags, err := c.api.AutoTag(ctx, name, description, string(audience))
	if err != nil {
		return nil, c.remoteFailure(err, failureTexts{
			apiPrefix: "Failed to fetch AI tags: ",
			fallback:  "Failed to fetch AI tags",
			transport: "AI tagging error",
		})
	}
	return tags, c.commit(func() {
		c.tags = tags
		c.status = success("AI suggested %d tags", len(tags))
	})
}

// begin marks op in flight and returns a context that is also cancelled by
// Close. done must be called when the operation finishes.
func (c *Composer) begin(ctx context.Context, op operation) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	if c.inFlight[op] {
		return nil, nil, ErrBusy
	}
	c.inFlight[op] = true

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
		c.mu.Lock()
		delete(c.inFlight, op)
		c.mu.Unlock()
	}, nil
}

// commit applies fn to the view state unless the view was closed.
func (c *Composer) commit(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	fn()
	return nil
}

// draft snapshots the form for submission after checking the name and the
// rules locally.
func (c *Composer) draft(nameMissing string) (crmapi.Draft, error) {
	c.mu.Lock()
	d := crmapi.Draft{
		Name:        c.name,
		Description: c.description,
		Rules:       c.Rules(),
		Tags:        append([]string(nil), c.tags...),
	}
	c.mu.Unlock()

	if strings.TrimSpace(d.Name) == "" {
		return d, c.precondition(ErrNameRequired, nameMissing)
	}
	if err := c.checkRules(d.Rules); err != nil {
		return d, err
	}
	return d, nil
}

// checkRules reports rules that cannot be submitted in the status slot.
func (c *Composer) checkRules(rs segment.RuleSet) error {
	err := rs.Validate()
	if err == nil {
		return nil
	}
	var verr *segment.ValidationError
	text := err.Error()
	if errors.As(err, &verr) {
		text = "Invalid segment rules: " + strings.TrimSpace(string(verr.Field)+" "+verr.Reason)
	}
	return c.precondition(err, text)
}

func (c *Composer) precondition(err error, text string) error {
	if cerr := c.commit(func() { c.status = failure(text) }); cerr != nil {
		return cerr
	}
	return err
}

func (c *Composer) remoteFailure(err error, t failureTexts) error {
	st := describeFailure(err, t)
	if cerr := c.commit(func() { c.status = st }); cerr != nil {
		return cerr
	}
	log.Warn().Err(err).Str("status", st.Text).Msg("composer operation failed")
	return err
}
