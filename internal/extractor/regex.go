package extractor

import (
	"regexp"
)

// findRegex returns the first capture group when the pattern has one,
// otherwise the full match.
func findRegex(body []byte, re *regexp.Regexp) (string, bool) {
	if re == nil {
		return "", false
	}
	match := re.FindSubmatch(body)
	if match == nil {
		return "", false
	}
	if len(match) > 1 {
		return string(match[1]), true
	}
	return string(match[0]), true
}
