package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails is an RFC 7807 error body. Extensions are written as
// top-level members next to the standard ones.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails creates a problem titled after its status code
func NewProblemDetails(status int, problemType, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WithExtension sets a top-level member
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = map[string]interface{}{}
	}
	pd.Extensions[key] = value
	return pd
}

// Render implements render.Renderer
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON merges Extensions into the body; standard members win on
// a name clash
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	type plain ProblemDetails
	std, err := json.Marshal((*plain)(pd))
	if err != nil || len(pd.Extensions) == 0 {
		return std, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(std, &members); err != nil {
		return nil, err
	}
	merged := make(map[string]interface{}, len(members)+len(pd.Extensions))
	for k, v := range pd.Extensions {
		merged[k] = v
	}
	for k, v := range members {
		merged[k] = v
	}
	return json.Marshal(merged)
}
