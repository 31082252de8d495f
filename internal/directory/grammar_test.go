package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"dotted", "sample.dex", true},
		{"mixed punctuation", "hub-1.test_name", true},
		{"single char", "a", true},
		{"digits only", "42", true},
		{"uppercase", "INVALID", false},
		{"space", "my hub", false},
		{"empty", "", false},
		{"invalid then valid", "hub@name", false},
		{"trailing invalid", "hub!", false},
		{"leading invalid", "@hub", false},
		{"non-ascii", "café", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidName(tt.input))
		})
	}
}

func TestNameStep_SinkIsAbsorbing(t *testing.T) {
	s := nameStep(nameStart, '@')
	assert.Equal(t, nameSink, s)
	for _, c := range []byte("abc") {
		s = nameStep(s, c)
		assert.Equal(t, nameSink, s)
	}
	assert.Equal(t, nameAccept, nameStep(nameStart, 'a'))
	assert.Equal(t, nameAccept, nameStep(nameAccept, '.'))
}
