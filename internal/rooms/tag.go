package rooms

import (
	"regexp"
	"unicode/utf8"
)

const maxTagLength = 50

// Letters, digits and CJK characters, a '#', then a 3 to 7 digit suffix.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}]+#[0-9]{3,7}$`)

// ValidateTag checks a display tag before anything touches the store.
func ValidateTag(tag string) error {
	if tag == "" || utf8.RuneCountInString(tag) > maxTagLength {
		return ErrInvalidTag
	}
	if !tagPattern.MatchString(tag) {
		return ErrInvalidTag
	}
	return nil
}
