package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// LooseInt is an integer field that accepts JSON numbers and numeric strings.
// Strings are read up to the first non-digit, so "1500ms" is 1500. A value
// with no leading integer, or a missing value, is not Valid.
type LooseInt struct {
	Value int
	Valid bool
}

// Ptr returns the value or nil when it is not Valid.
func (l LooseInt) Ptr() *int {
	if !l.Valid {
		return nil
	}
	v := l.Value
	return &v
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LooseInt) UnmarshalJSON(data []byte) error {
	*l = LooseInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		l.Value, l.Valid = ParseIntPrefix(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// booleans, objects and arrays coerce to no value
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	l.Value, l.Valid = int(math.Trunc(f)), true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l LooseInt) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(l.Value)), nil
}

// ParseIntPrefix reads an optionally signed base-10 integer from the start of s,
// after leading whitespace. It reports false when no digit is found.
func ParseIntPrefix(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
