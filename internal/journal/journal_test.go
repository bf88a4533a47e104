package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifySelfEcho(t *testing.T) {
	j := New()
	sig := NewSignature()
	j.Record(sig)

	assert.Equal(t, OriginSelf, j.Classify(sig))
	// A signature is consumed on first classification.
	assert.Equal(t, OriginExternal, j.Classify(sig))
}

func TestClassifyUnknownSignature(t *testing.T) {
	j := New()
	j.Record(NewSignature())
	assert.Equal(t, OriginExternal, j.Classify("deadbeef00000000"))
}

func TestClassifyEmptySignature(t *testing.T) {
	j := New()
	assert.Equal(t, OriginExternal, j.Classify(""))
}

func TestClassifyExpiredSignature(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	j := NewWithClock(func() time.Time { return now })

	sig := NewSignature()
	j.Record(sig)

	now = now.Add(6 * time.Minute)
	assert.Equal(t, OriginExternal, j.Classify(sig))
}

func TestClear(t *testing.T) {
	j := New()
	sig := NewSignature()
	j.Record(sig)
	j.Clear()

	assert.Equal(t, OriginExternal, j.Classify(sig))
	last, at := j.Last()
	assert.Empty(t, last)
	assert.True(t, at.IsZero())
}

func TestNewSignatureUnique(t *testing.T) {
	a := NewSignature()
	b := NewSignature()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
