// Package domain contains entity without logic, just meta-data
package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxNicknameLen = 15
	DefaultChannel = "#main"
)

var nonWord = regexp.MustCompile(`\W`)

// SanitizeNickname strips every non-word character and checks the length of what is left.
func SanitizeNickname(raw string) (string, error) {
	name := nonWord.ReplaceAllString(raw, "")
	if name == "" {
		return "", fmt.Errorf("%w: nickname must contain letters, digits or underscores", ErrNameInvalid)
	}
	if len(name) > MaxNicknameLen {
		return "", fmt.Errorf("%w: nickname longer than %d characters", ErrNameInvalid, MaxNicknameLen)
	}
	return name, nil
}

// NickKey is the case-insensitive identity of a nickname.
func NickKey(nick string) string {
	return strings.ToLower(nick)
}

// SanitizeChannel validates a channel name of the form "#word".
func SanitizeChannel(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "#") {
		return "", fmt.Errorf("%w: channel must start with #", ErrValidation)
	}
	body := raw[1:]
	if body == "" || nonWord.MatchString(body) || len(body) > MaxNicknameLen {
		return "", fmt.Errorf("%w: invalid channel name %q", ErrValidation, raw)
	}
	return "#" + strings.ToLower(body), nil
}
