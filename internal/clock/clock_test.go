package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	m := NewManual(start)

	assert.Equal(t, start, m.Now())

	got := m.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}
