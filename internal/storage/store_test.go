package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultQueryMillis(t *testing.T) {
	d := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ms := d.UnixMilli()

	tests := []struct {
		name     string
		at       time.Time
		wantFrom int64
		wantTo   int64
	}{
		{"whole millisecond", d, ms, ms},
		{"half millisecond", d.Add(500 * time.Microsecond), ms, ms + 1},
		{"one nanosecond over", d.Add(time.Nanosecond), ms, ms + 1},
		{"before epoch", time.UnixMilli(-10).Add(-300 * time.Microsecond), -11, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ResultQuery{From: tt.at, To: tt.at}
			assert.Equal(t, tt.wantFrom, q.FromMillis())
			assert.Equal(t, tt.wantTo, q.ToMillis())
		})
	}
}
