package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.UGCPolicy()

// Sanitize strips dangerous markup from user supplied post fields before
// they are stored.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
