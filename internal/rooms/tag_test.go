package rooms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTag(t *testing.T) {
	tests := []struct {
		tag   string
		valid bool
	}{
		{"Alice#123", true},
		{"bob42#1234567", true},
		{"玩家#0001", true},
		{"カタカナ#555", true},
		{"ひらがな#5555", true},
		{"플레이어#777", true},
		{"", false},
		{"Alice", false},
		{"Alice#12", false},
		{"Alice#12345678", false},
		{"Al ice#123", false},
		{"Alice#12a", false},
		{"#123", false},
		{"Alice##123", false},
		{strings.Repeat("a", 46) + "#123", true},
		{strings.Repeat("a", 47) + "#123", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			err := ValidateTag(tt.tag)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTag)
			}
		})
	}
}
