// Package query parses raw URL query strings into a flat key/value mapping.
package query

import (
	"net/url"
	"strings"
)

// Parse splits raw on '&' and each pair on its first '='. Keys and values are
// percent-decoded ('+' decodes to a space). A pair is dropped when it has no
// '=', an empty key, an empty value, or an invalid escape. When a key repeats,
// the first occurrence wins.
func Parse(raw string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		if _, seen := params[key]; seen {
			continue
		}
		params[key] = value
	}
	return params
}
