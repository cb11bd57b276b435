package campaign

import (
	"encoding/json"
	"errors"
	"fmt"

	"campaign-console/internal/crmapi"
	"campaign-console/internal/segment"
)

const (
	successMarker = "✅"
	failureMarker = "❌"
)

// Status is the single message slot a view shows to the user.
type Status struct {
	OK   bool
	Text string
}

func success(format string, args ...any) Status {
	return Status{OK: true, Text: fmt.Sprintf(format, args...)}
}

func failure(text string) Status { return Status{Text: text} }

// String renders the message with its success or failure marker. An empty
// status renders as "".
func (s Status) String() string {
	if s.Text == "" {
		return ""
	}
	if s.OK {
		return successMarker + " " + s.Text
	}
	return failureMarker + " " + s.Text
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OK      bool   `json:"ok"`
		Text    string `json:"text"`
		Message string `json:"message"`
	}{s.OK, s.Text, s.String()})
}

// failureTexts are the messages a remote operation shows when it fails.
type failureTexts struct {
	apiPrefix string // prepended to the service's own message
	fallback  string // service sent no message
	transport string // no response at all
}

func describeFailure(err error, t failureTexts) Status {
	var apiErr *crmapi.APIError
	var decErr *segment.DecodeError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return failure(t.apiPrefix + apiErr.Message)
		}
		if apiErr.Unauthorized() {
			return failure("Session expired, please log in again")
		}
		return failure(t.fallback)
	case errors.As(err, &decErr):
		return failure(fmt.Sprintf("AI returned invalid segment rules (%s)", decErr.Kind))
	default:
		return failure(t.transport)
	}
}
