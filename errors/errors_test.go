package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelIdentity(t *testing.T) {
	err := Wrap(ErrTimeParse, "parsing repeat interval")
	assert.True(t, Is(err, ErrTimeParse))
	assert.False(t, Is(err, ErrInvalidPriority))
}

func TestWrapPreservesDetails(t *testing.T) {
	err := New("save failed")
	err = WithDetail(err, "Job ID: JB_123")
	err = Wrap(err, "persistence boundary")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "Job ID: JB_123", details[0])
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
}
