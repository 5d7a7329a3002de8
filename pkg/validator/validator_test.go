package validator

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Token    string `json:"token" validate:"required,max=8"`
	Priority string `json:"priority" validate:"omitempty,oneof=normal high"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url"`
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Priority: "urgent", ImageURL: "not a url"})
	require.Error(t, err)

	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve, 3)
	assert.Equal(t, ValidationError{Field: "token", Message: "is required"}, ve[0])
	assert.Equal(t, "priority", ve[1].Field)
	assert.Equal(t, "must be one of [normal high]", ve[1].Message)
	assert.Equal(t, "imageUrl", ve[2].Field)
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Token: "abc", Priority: "high", ImageURL: "https://example.com/a.png"}))
}

func TestStruct_MaxLength(t *testing.T) {
	err := Struct(sample{Token: "0123456789"})
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be at most 8 characters", ve[0].Message)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "ab", SanitizeString(" ab ", 10))
}

func TestSanitizeString_KeepsRunesWhole(t *testing.T) {
	// "é" and "🎉" are 2 and 4 bytes
	assert.Equal(t, "caf", SanitizeString("café", 4))
	assert.Equal(t, "café", SanitizeString("café", 5))
	assert.Equal(t, "ok", SanitizeString("ok🎉", 5))
	assert.Equal(t, "", SanitizeString("🎉", 3))
	for _, n := range []int{0, 1, 2, 3, 4, 5, 6} {
		assert.True(t, utf8.ValidString(SanitizeString("añ🎉b", n)), n)
	}
}
