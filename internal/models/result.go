package models

import (
	"encoding/json"
	"strconv"
	"time"

	"a11ywatch/internal/objectid"
)

// Issue severities counted in a result's summary.
const (
	IssueError   = "error"
	IssueWarning = "warning"
	IssueNotice  = "notice"
)

// DefaultWindow is how far back a result query reaches when no start is given.
const DefaultWindow = 30 * 24 * time.Hour

// isoMillis matches the ISO-8601 form results are reported in.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Count summarizes the issues of a result by severity.
type Count struct {
	Total   int `json:"total"`
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Notice  int `json:"notice"`
}

// Result is the stored form of one task execution.
type Result struct {
	ID      objectid.ID
	Task    objectid.ID
	Date    time.Time
	Count   Count
	Ignore  []string
	Results []Issue
}

// NewResult is the input for creating a result. ID is optional and only set
// when restoring fixtures; Task is coerced through objectid.Parse.
type NewResult struct {
	ID      string    `json:"id,omitempty"`
	Task    string    `json:"task"`
	Date    time.Time `json:"date"`
	Count   Count     `json:"count"`
	Ignore  []string  `json:"ignore,omitempty"`
	Results []Issue   `json:"results,omitempty"`
}

// ResultOutput is the projected form of a result. The summary projection
// omits the issue list; the full projection always carries it.
type ResultOutput struct {
	ID      string   `json:"id"`
	Task    string   `json:"task"`
	Date    string   `json:"date"`
	Count   Count    `json:"count"`
	Ignore  []string `json:"ignore"`
	Results []Issue  `json:"results,omitempty"`

	full bool
}

// IsFull reports whether r came from the full projection.
func (r ResultOutput) IsFull() bool { return r.full }

// MarshalJSON implements json.Marshaler.
func (r ResultOutput) MarshalJSON() ([]byte, error) {
	type summary ResultOutput
	s := summary(r)
	if !r.full {
		s.Results = nil
		return json.Marshal(s)
	}
	return json.Marshal(struct {
		summary
		Results []Issue `json:"results"`
	}{summary: s, Results: r.Results})
}

// Output projects the stored result.
func (r *Result) Output(full bool) ResultOutput {
	out := ResultOutput{
		ID:     r.ID.String(),
		Task:   r.Task.String(),
		Date:   FormatDate(r.Date),
		Count:  r.Count,
		Ignore: r.Ignore,
		full:   full,
	}
	if out.Ignore == nil {
		out.Ignore = []string{}
	}
	if full {
		out.Results = r.Results
		if out.Results == nil {
			out.Results = []Issue{}
		}
	}
	return out
}

// FormatDate renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatDate(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// ResultFilter selects results by time window and task.
type ResultFilter struct {
	From  string `form:"from" json:"from,omitempty"`
	To    string `form:"to" json:"to,omitempty"`
	Full  bool   `form:"full" json:"full,omitempty"`
	Task  string `form:"-" json:"task,omitempty"`
	Limit int    `form:"limit" json:"limit,omitempty"`
}

// Window resolves the filter's bounds relative to now. Missing or unparsable
// values fall back to DefaultWindow before now and now respectively.
func (f ResultFilter) Window(now time.Time) (from, to time.Time) {
	from = ParseDate(f.From, now.Add(-DefaultWindow))
	to = ParseDate(f.To, now)
	return from, to
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate reads an ISO-8601 date or date-time, or failing that a
// unix-millisecond value. A bare four-digit number is a year. Anything else
// yields fallback.
func ParseDate(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return fallback
}
