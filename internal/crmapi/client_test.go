package crmapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-console/internal/segment"
)

type errRoundTripper struct{}

func (errRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("boom")
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	for _, bad := range []string{"", "   ", "ftp://crm.local", "http://", "http://%zz"} {
		_, err := New(bad)
		assert.Error(t, err, "base url %q", bad)
	}
	c, err := New("https://crm.example.invalid/api/")
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.invalid/api", c.baseURL)
}

func TestPreviewAudience(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/campaigns/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		cookie, err := r.Cookie("connect.sid")
		require.NoError(t, err)
		assert.Equal(t, "s3ss", cookie.Value)

		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		writeJSON(w, http.StatusOK, map[string]any{"audienceSize": 42})
	})
	c := newTestClient(t, mux, WithSessionCookie("connect.sid", "s3ss"))

	size, err := c.PreviewAudience(context.Background(), Draft{Name: "Summer Sale", Description: "d", Rules: segment.Defaults()})
	require.NoError(t, err)
	assert.Equal(t, 42, size)

	assert.Equal(t, "Summer Sale", got["name"])
	assert.Equal(t, true, got["preview"])
	rules, ok := got["segmentRules"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AND", rules["logic"])
	assert.Equal(t, map[string]any{"operator": ">", "value": 10000.0}, rules["spend"])
}

func TestPreviewAudience_NameRequired(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.PreviewAudience(context.Background(), Draft{Name: "  ", Rules: segment.Defaults()})
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.Zero(t, calls.Load())
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantAuth bool
	}{
		{"message body", http.StatusBadRequest, `{"message":"Invalid rule"}`, "Invalid rule", false},
		{"no message", http.StatusInternalServerError, `oops`, "", false},
		{"unauthorized", http.StatusUnauthorized, `{"message":"Not logged in"}`, "Not logged in", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			_, err := c.PreviewAudience(context.Background(), Draft{Name: "x", Rules: segment.Defaults()})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantAuth, apiErr.Unauthorized())
		})
	}
}

func TestTransportFailure(t *testing.T) {
	c, err := New("http://crm.local", WithHTTPClient(&http.Client{Transport: errRoundTripper{}}))
	require.NoError(t, err)

	_, err = c.History(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestCanceledRequest(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.History(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRequestFailed)
}

func TestHistory(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{
			name: "sorted newest first",
			body: `{"data":[
				{"_id":"a","name":"A","createdAt":"2024-01-02T10:00:00Z"},
				{"_id":"b","name":"B","createdAt":"2024-03-01T08:00:00.000Z"},
				{"_id":"c","name":"C","createdAt":"2023-12-31T23:59:59Z"},
				{"id":"d","name":"D","createdAt":1717200000000}
			]}`,
			wantIDs: []string{"d", "b", "a", "c"},
		},
		{
			name: "unparseable timestamps last",
			body: `{"data":[
				{"_id":"x","createdAt":"yesterday"},
				{"_id":"y","createdAt":"2024-01-01T00:00:00Z"}
			]}`,
			wantIDs: []string{"y", "x"},
		},
		{
			name:    "bad entries skipped",
			body:    `{"data":[{"_id":"ok","createdAt":"2024-01-01T00:00:00Z"},"junk",{"_id":"n","sent":"many"}]}`,
			wantIDs: []string{"ok"},
		},
		{"data is object", `{"data":{"_id":"a"}}`, []string{}},
		{"data is null", `{"data":null}`, []string{}},
		{"data missing", `{"success":true}`, []string{}},
		{"body is list", `[{"_id":"a"}]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/campaigns/history", r.URL.Path)
				assert.Equal(t, http.MethodGet, r.Method)
				_, _ = io.WriteString(w, tt.body)
			}))

			list, err := c.History(context.Background())
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, cmp := range list {
				ids = append(ids, cmp.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCampaignDisplayDefaults(t *testing.T) {
	var cmp Campaign
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"1"}`), &cmp))
	assert.Equal(t, "Untitled", cmp.DisplayName())
	assert.Equal(t, "draft", cmp.DisplayStatus())
	assert.False(t, cmp.AlreadySent())
	assert.True(t, Campaign{Status: "sent"}.AlreadySent())
}

func TestSendCampaign(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/campaigns/c%2F1/send", r.URL.EscapedPath())
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{"campaign": map[string]any{"sent": 8, "failed": 2}})
	}))

	res, err := c.SendCampaign(context.Background(), "c/1")
	require.NoError(t, err)
	assert.Equal(t, SendResult{Sent: 8, Failed: 2}, res)

	_, err = c.SendCampaign(context.Background(), "")
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestCreateCampaign(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		writeJSON(w, http.StatusCreated, map[string]any{
			"campaign": map[string]any{"_id": "new1", "name": "Winback", "status": "draft", "audienceSize": 12},
		})
	}), WithBearerToken("tok"))

	cmp, err := c.CreateCampaign(context.Background(), Draft{
		Name:  "Winback",
		Rules: segment.Defaults(),
		Tags:  []string{"retention"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", cmp.ID)
	assert.Equal(t, 12, cmp.AudienceSize)
	assert.NotContains(t, got, "preview")
	assert.Equal(t, []any{"retention"}, got["tags"])
}

func TestCreateCampaign_BareRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"_id": "bare", "name": "Bare"})
	}), WithBearerToken("tok"))

	cmp, err := c.CreateCampaign(context.Background(), Draft{Name: "Bare", Rules: segment.Defaults()})
	require.NoError(t, err)
	assert.Equal(t, "bare", cmp.ID)
}

func TestParseSegment(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind segment.DecodeKind
	}{
		{"valid", `{"rules":{"logic":"OR","spend":{"operator":">","value":5000},"visits":{"operator":"<","value":2},"inactiveDays":{"operator":">","value":30}}}`, ""},
		{"missing rules", `{}`, segment.KindMalformed},
		{"bad operator", `{"rules":{"spend":{"operator":"~","value":1},"visits":{"operator":"<","value":2},"inactiveDays":{"operator":">","value":30}}}`, segment.KindBadOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/ai/parse-segment", r.URL.Path)
				_, _ = io.WriteString(w, tt.body)
			}))

			rs, err := c.ParseSegment(context.Background(), "big spenders who left")
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, segment.LogicOr, rs.Logic)
				assert.Equal(t, 5000.0, rs.Spend.Value)
				return
			}
			var derr *segment.DecodeError
			require.True(t, errors.As(err, &derr), "got %v", err)
			assert.Equal(t, tt.wantKind, derr.Kind)
		})
	}

	c, err := New("http://crm.local")
	require.NoError(t, err)
	_, err = c.ParseSegment(context.Background(), " ")
	assert.ErrorIs(t, err, ErrDescriptionRequired)
}

func TestGenerateMessagesAndTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ai/generate-messages", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Winback", req["objective"])
		assert.Equal(t, "Spend > 10000, Visits < 3, Inactive Days > 90", req["audience"])
		writeJSON(w, http.StatusOK, map[string]any{"messages": []string{"We miss you"}})
	})
	mux.HandleFunc("/api/ai/auto-tag", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := newTestClient(t, mux)

	msgs, err := c.GenerateMessages(context.Background(), "Winback", segment.Defaults().Describe())
	require.NoError(t, err)
	assert.Equal(t, []string{"We miss you"}, msgs)

	tags, err := c.AutoTag(context.Background(), "Winback", "", "{}")
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.NotNil(t, tags)
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"name": "Asha", "email": "asha@example.invalid"}})
	}))

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
}
