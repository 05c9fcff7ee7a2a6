package audio

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSpeechText is the longest input the speech providers accept
const MaxSpeechText = 4096

// ValidateText checks that text can be spoken: it must contain at least
// one letter or digit and stay below MaxSpeechText runes.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if utf8.RuneCountInString(text) > MaxSpeechText {
		return fmt.Errorf("text is longer than %d characters", MaxSpeechText)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return nil
		}
	}

	return fmt.Errorf("text must contain letters or digits")
}
