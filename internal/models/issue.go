package models

import (
	"encoding/json"
	"strings"
)

// Issue is one finding reported by the checker. Fields the checker sends
// beyond the named ones are kept in Extra and written back unchanged.
type Issue struct {
	Code         string         `json:"code"`
	Context      string         `json:"context"`
	Message      string         `json:"message"`
	Selector     string         `json:"selector"`
	Type         string         `json:"type"`
	TypeCode     int            `json:"typeCode"`
	Runner       string         `json:"runner,omitempty"`
	RunnerExtras map[string]any `json:"runnerExtras,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// issueFields has Issue's layout without its methods.
type issueFields Issue

var issueKeys = []string{"code", "context", "message", "selector", "type", "typeCode", "runner", "runnerExtras"}

func isIssueKey(k string) bool {
	for _, known := range issueKeys {
		if strings.EqualFold(k, known) {
			return true
		}
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Issue) UnmarshalJSON(b []byte) error {
	var fields issueFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	fields.Extra = nil
	for k, v := range all {
		if isIssueKey(k) {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[k] = v
	}
	*i = Issue(fields)
	return nil
}

// MarshalJSON implements json.Marshaler. Named fields win over Extra keys.
func (i Issue) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(issueFields(i))
	if err != nil || len(i.Extra) == 0 {
		return b, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k, v := range i.Extra {
		if !isIssueKey(k) {
			all[k] = v
		}
	}
	return json.Marshal(all)
}
