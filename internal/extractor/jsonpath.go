package extractor

import (
	"github.com/tidwall/gjson"
)

// findJSONPath extracts a value from JSON using gjson with support for $.field and field syntax.
func findJSONPath(body []byte, path string) (string, bool) {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}

	if !gjson.ValidBytes(body) {
		return "", false
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}
