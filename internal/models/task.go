package models

import (
	"errors"
	"fmt"
	"strings"

	"a11ywatch/internal/objectid"
)

// ErrValidation is returned when an inbound payload is missing a required field
// or carries a value outside its allowed set.
var ErrValidation = errors.New("validation failed")

// Accessibility rulesets understood by the checker.
const (
	StandardSection508 = "Section508"
	StandardWCAG2A     = "WCAG2A"
	StandardWCAG2AA    = "WCAG2AA"
	StandardWCAG2AAA   = "WCAG2AAA"
)

// Read-time defaults for tasks that were stored without these fields.
const (
	DefaultTimeout = 30000
	DefaultWait    = 0
)

// AnnotationEdit is the annotation type recorded by task edits.
const AnnotationEdit = "edit"

// DefaultEditComment is used when an edit carries no comment.
const DefaultEditComment = "Edited task"

// ValidStandard reports whether s names a known ruleset.
func ValidStandard(s string) bool {
	switch s {
	case StandardSection508, StandardWCAG2A, StandardWCAG2AA, StandardWCAG2AAA:
		return true
	}
	return false
}

// Annotation is one entry of a task's edit history. Date is unix milliseconds.
type Annotation struct {
	Type    string `json:"type"`
	Date    int64  `json:"date"`
	Comment string `json:"comment"`
}

// Task is the stored form of a task. Nil pointers and nil slices mean the field
// was never written; defaults are applied by the output projection only.
type Task struct {
	ID           objectid.ID
	Name         string
	URL          string
	Standard     string
	Timeout      *int
	Wait         *int
	Ignore       []string
	Username     *string
	Password     *string
	Headers      map[string]string
	HideElements *string
	Annotations  []Annotation
}

// TaskOutput is the projected form of a task returned to callers.
type TaskOutput struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Timeout      int               `json:"timeout"`
	Wait         int               `json:"wait"`
	Standard     string            `json:"standard"`
	Ignore       []string          `json:"ignore"`
	Annotations  []Annotation      `json:"annotations,omitempty"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	HideElements string            `json:"hideElements,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Output projects the stored task.
func (t *Task) Output() TaskOutput {
	out := TaskOutput{
		ID:       t.ID.String(),
		Name:     t.Name,
		URL:      t.URL,
		Timeout:  DefaultTimeout,
		Wait:     DefaultWait,
		Standard: t.Standard,
		Ignore:   t.Ignore,
	}
	if t.Timeout != nil && *t.Timeout != 0 {
		out.Timeout = *t.Timeout
	}
	if t.Wait != nil && *t.Wait != 0 {
		out.Wait = *t.Wait
	}
	if out.Ignore == nil {
		out.Ignore = []string{}
	}
	if t.Annotations != nil {
		out.Annotations = t.Annotations
	}
	if t.Username != nil {
		out.Username = *t.Username
	}
	if t.Password != nil {
		out.Password = *t.Password
	}
	if t.HideElements != nil {
		out.HideElements = *t.HideElements
	}
	if t.Headers != nil {
		out.Headers = t.Headers
	}
	return out
}

// NewTask is the payload used to create a task.
type NewTask struct {
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Standard     string            `json:"standard"`
	Timeout      *int              `json:"timeout,omitempty"`
	Wait         *int              `json:"wait,omitempty"`
	Ignore       []string          `json:"ignore,omitempty"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	HideElements string            `json:"hideElements,omitempty"`
}

// Validate checks the required creation fields.
func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if !ValidStandard(n.Standard) {
		return fmt.Errorf("%w: standard must be one of %s, %s, %s, %s", ErrValidation,
			StandardSection508, StandardWCAG2A, StandardWCAG2AA, StandardWCAG2AAA)
	}
	return nil
}

// Record converts the payload to its stored form without applying defaults.
func (n NewTask) Record(id objectid.ID) *Task {
	return &Task{
		ID:           id,
		Name:         n.Name,
		URL:          n.URL,
		Standard:     n.Standard,
		Timeout:      n.Timeout,
		Wait:         n.Wait,
		Ignore:       n.Ignore,
		Username:     optional(n.Username),
		Password:     optional(n.Password),
		Headers:      n.Headers,
		HideElements: optional(n.HideElements),
	}
}

// TaskEdits is the inbound edit payload.
type TaskEdits struct {
	Name     string   `json:"name"`
	Timeout  LooseInt `json:"timeout"`
	Wait     LooseInt `json:"wait"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Ignore   []string `json:"ignore"`
	Comment  string   `json:"comment"`
}

// Validate checks the required edit fields.
func (e TaskEdits) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}

// Update converts the edits to the field set written by the store.
func (e TaskEdits) Update() TaskUpdate {
	return TaskUpdate{
		Name:     e.Name,
		Timeout:  e.Timeout.Ptr(),
		Wait:     e.Wait.Ptr(),
		Username: optional(e.Username),
		Password: optional(e.Password),
		Ignore:   e.Ignore,
	}
}

// AnnotationComment returns the edit comment or the default one.
func (e TaskEdits) AnnotationComment() string {
	if e.Comment != "" {
		return e.Comment
	}
	return DefaultEditComment
}

// TaskUpdate is the fixed field set an edit writes. Nil pointers clear the
// column; a nil Ignore leaves the stored ignore list untouched.
type TaskUpdate struct {
	Name     string
	Timeout  *int
	Wait     *int
	Username *string
	Password *string
	Ignore   []string
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
