package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"international with spaces", "+90 536 592 30 35", "905365923035"},
		{"trunk prefix", "05365923035", "905365923035"},
		{"national only", "5365923035", "905365923035"},
		{"parentheses and dashes", "(536) 592-30-35", "905365923035"},
		{"double zero prefix", "0090 536 592 3035", "905365923035"},
		{"foreign number untouched", "+44 20 7946 0958", "442079460958"},
		{"foreign with double zero", "0044 20 7946 0958", "442079460958"},
		{"already canonical", "905365923035", "905365923035"},
		{"letters dropped", "tel: 0536-592-30-35", "905365923035"},
		{"empty", "", ""},
		{"no digits", "n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"+90 536 592 30 35",
		"05365923035",
		"5365923035",
		"0000536",
		"00",
		"+1 (555) 010-9999",
		"0044 20 7946 0958",
		"12345678901",
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("+90 536 592 30 35", "05365923035"))
	assert.True(t, Equal("5365923035", "905365923035"))
	assert.True(t, Equal(Normalize("0536 592 30 35"), Normalize("+90-536-592-3035")))
	assert.False(t, Equal("05365923035", "05365923036"))
	assert.False(t, Equal("", ""))
	assert.False(t, Equal("abc", "def"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("0536 592 30 35"))
	assert.False(t, Valid("12"))
	assert.False(t, Valid(""))
}

func TestToDisplay(t *testing.T) {
	assert.Equal(t, "+90 536 592 30 35", ToDisplay("905365923035"))
	assert.Equal(t, "+90 536 592 30 35", ToDisplay("05365923035"))
	assert.Equal(t, "", ToDisplay(""))
}
