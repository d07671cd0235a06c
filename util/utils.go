package util

import (
	"regexp"
)

var (
	messageReg = regexp.MustCompile(`"message"\s*:\s*"([^"]+)"`)
	titleReg   = regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`)
)

// ReadErrorMessage pulls the first service error message out of an apple json error body.
func ReadErrorMessage(body []byte) string {
	matches := messageReg.FindStringSubmatch(string(body))
	if len(matches) > 1 {
		return matches[1]
	}
	matches = titleReg.FindStringSubmatch(string(body))
	if len(matches) > 1 {
		return matches[1]
	}
	return string(body)
}
