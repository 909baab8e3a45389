package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/objectid"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func TestTaskOutputDefaults(t *testing.T) {
	id := objectid.New()
	task := &Task{ID: id, Name: "Home", URL: "https://example.com", Standard: StandardWCAG2AA}

	got := task.Output()
	want := TaskOutput{
		ID:       id.String(),
		Name:     "Home",
		URL:      "https://example.com",
		Timeout:  DefaultTimeout,
		Wait:     DefaultWait,
		Standard: StandardWCAG2AA,
		Ignore:   []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Output() mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(got)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"annotations", "username", "password", "hideElements", "headers"} {
		assert.NotContains(t, raw, key)
	}
	assert.Equal(t, []any{}, raw["ignore"])
}

func TestTaskOutputOptionalFields(t *testing.T) {
	task := &Task{
		ID:           objectid.New(),
		Name:         "Login",
		URL:          "https://example.com/login",
		Standard:     StandardWCAG2A,
		Timeout:      intPtr(0),
		Wait:         intPtr(500),
		Ignore:       []string{"notice"},
		Username:     strPtr("user"),
		Password:     strPtr("secret"),
		Headers:      map[string]string{"Cookie": "a=b"},
		HideElements: strPtr(".ad, #banner"),
		Annotations:  []Annotation{{Type: AnnotationEdit, Date: 1, Comment: "x"}},
	}

	got := task.Output()
	assert.Equal(t, DefaultTimeout, got.Timeout, "a zero timeout reads as the default")
	assert.Equal(t, 500, got.Wait)
	assert.Equal(t, "user", got.Username)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, ".ad, #banner", got.HideElements)
	assert.Equal(t, map[string]string{"Cookie": "a=b"}, got.Headers)
	assert.Len(t, got.Annotations, 1)
}

func TestNewTaskValidate(t *testing.T) {
	valid := NewTask{Name: "n", URL: "https://example.com", Standard: StandardWCAG2AA}
	require.NoError(t, valid.Validate())

	for name, nt := range map[string]NewTask{
		"missing name":     {URL: "https://example.com", Standard: StandardWCAG2AA},
		"missing url":      {Name: "n", Standard: StandardWCAG2AA},
		"unknown standard": {Name: "n", URL: "https://example.com", Standard: "WCAG3"},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, nt.Validate(), ErrValidation)
		})
	}
}

func TestNewTaskRecordAppliesNoDefaults(t *testing.T) {
	rec := NewTask{Name: "n", URL: "u", Standard: StandardWCAG2AA}.Record(objectid.New())
	assert.Nil(t, rec.Timeout)
	assert.Nil(t, rec.Wait)
	assert.Nil(t, rec.Ignore)
	assert.Nil(t, rec.Username)
	assert.Nil(t, rec.Annotations)
}

func TestTaskEditsDecoding(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantTimeout *int
		wantWait    *int
	}{
		{name: "numbers", body: `{"name":"a","timeout":1000,"wait":20}`, wantTimeout: intPtr(1000), wantWait: intPtr(20)},
		{name: "numeric strings", body: `{"name":"a","timeout":"1000","wait":" 20"}`, wantTimeout: intPtr(1000), wantWait: intPtr(20)},
		{name: "integer prefix", body: `{"name":"a","timeout":"1500ms","wait":"-3x"}`, wantTimeout: intPtr(1500), wantWait: intPtr(-3)},
		{name: "fractional number truncates", body: `{"name":"a","timeout":12.9}`, wantTimeout: intPtr(12)},
		{name: "non numeric", body: `{"name":"a","timeout":"soon","wait":true}`},
		{name: "absent", body: `{"name":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var edits TaskEdits
			require.NoError(t, json.Unmarshal([]byte(tt.body), &edits))
			update := edits.Update()
			assert.Equal(t, tt.wantTimeout, update.Timeout)
			assert.Equal(t, tt.wantWait, update.Wait)
		})
	}
}

func TestTaskEditsComment(t *testing.T) {
	assert.Equal(t, DefaultEditComment, TaskEdits{Name: "a"}.AnnotationComment())
	assert.Equal(t, "moved", TaskEdits{Name: "a", Comment: "moved"}.AnnotationComment())
	require.ErrorIs(t, TaskEdits{}.Validate(), ErrValidation)
}

func TestTaskEditsIgnorePresence(t *testing.T) {
	var absent, empty TaskEdits
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a"}`), &absent))
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","ignore":[]}`), &empty))
	assert.Nil(t, absent.Update().Ignore, "absent ignore leaves the stored list alone")
	assert.NotNil(t, empty.Update().Ignore, "an explicit empty list is written")
}

func TestResultOutputProjections(t *testing.T) {
	r := &Result{
		ID:    objectid.New(),
		Task:  objectid.New(),
		Date:  time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.UTC),
		Count: Count{Total: 1, Error: 1},
	}

	summary, err := json.Marshal(r.Output(false))
	require.NoError(t, err)
	var s map[string]any
	require.NoError(t, json.Unmarshal(summary, &s))
	assert.Equal(t, "2024-05-06T07:08:09.123Z", s["date"])
	assert.Equal(t, []any{}, s["ignore"])
	assert.NotContains(t, s, "results")

	full, err := json.Marshal(r.Output(true))
	require.NoError(t, err)
	var f map[string]any
	require.NoError(t, json.Unmarshal(full, &f))
	assert.Equal(t, []any{}, f["results"])
	assert.True(t, r.Output(true).IsFull())
}

func TestIssueKeepsUnknownFields(t *testing.T) {
	in := `{"code":"c1","context":"<img>","message":"m","selector":"img","type":"error","typeCode":1,"help":{"url":"https://x.test"},"wcag":["1.1.1"]}`

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(in), &issue))
	assert.Equal(t, "c1", issue.Code)
	assert.Equal(t, map[string]json.RawMessage{
		"help": json.RawMessage(`{"url":"https://x.test"}`),
		"wcag": json.RawMessage(`["1.1.1"]`),
	}, issue.Extra)

	out, err := json.Marshal(issue)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	plain, err := json.Marshal(Issue{Code: "c2", Type: IssueNotice, Extra: map[string]json.RawMessage{"code": json.RawMessage(`"shadowed"`)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"c2","context":"","message":"","selector":"","type":"notice","typeCode":0}`, string(plain))

	var known Issue
	require.NoError(t, json.Unmarshal([]byte(`{"code":"c3","type":"warning"}`), &known))
	assert.Nil(t, known.Extra)
}

func TestResultFilterWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	from, to := ResultFilter{}.Window(now)
	assert.True(t, from.Equal(now.Add(-DefaultWindow)))
	assert.True(t, to.Equal(now))

	from, to = ResultFilter{From: "2024-05-01", To: "2024-05-02T10:00:00Z"}.Window(now)
	assert.True(t, from.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)))

	from, to = ResultFilter{From: "not a date", To: "also not"}.Window(now)
	assert.True(t, from.Equal(now.Add(-DefaultWindow)), "invalid from collapses to the default")
	assert.True(t, to.Equal(now), "invalid to collapses to now")

	from, _ = ResultFilter{From: "1714521600000"}.Window(now)
	assert.True(t, from.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	fallback := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := map[string]time.Time{
		"2024":                     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-05":                  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"2024-05-02":               time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		"2024-05-02T10:30":         time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02T10:30:00.250Z": time.Date(2024, 5, 2, 10, 30, 0, 250e6, time.UTC),
		"1714521600000":            time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"0":                        time.UnixMilli(0).UTC(),
		"next tuesday":             fallback,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got := ParseDate(in, fallback)
			assert.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestParseIntPrefix(t *testing.T) {
	tests := map[string]struct {
		v  int
		ok bool
	}{
		"42":    {42, true},
		"  7":   {7, true},
		"+5":    {5, true},
		"-12ab": {-12, true},
		"abc":   {0, false},
		"":      {0, false},
		"-":     {0, false},
	}
	for in, want := range tests {
		v, ok := ParseIntPrefix(in)
		assert.Equal(t, want.ok, ok, in)
		assert.Equal(t, want.v, v, in)
	}
}
