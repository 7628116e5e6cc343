package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"international", "+14155551234", "+*******1234"},
		{"no plus prefix", "4155551234", "******1234"},
		{"short with plus", "+123", "+***"},
		{"short without plus", "123", "***"},
		{"exactly four digits", "1234", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhoneNumber(tt.input))
		})
	}
}

func TestMaskAccountSID(t *testing.T) {
	assert.Equal(t, "AC************cdef", MaskAccountSID("AC0123456789abcdef"))
	assert.Equal(t, "******", MaskAccountSID("AC1234"))
	assert.Equal(t, "", MaskAccountSID(""))
}
