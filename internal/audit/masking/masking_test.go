package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskReference(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abc":              "****",
		"8XK12345AB678901": "****8901",
		"pi_3NfA9sLkdIwH":  "pi_****dIwH",
		"ch_12":            "ch_****",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskReference(in), "input %q", in)
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", MaskEmail("ada@example.com"))
	assert.Equal(t, "****here", MaskEmail("no-at-sign-here"))
}
