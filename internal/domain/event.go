package domain

import (
	"net/url"
	"strings"
)

// ObjectEvent is a normalized storage-change notification: an object was
// created at Bucket/Key. Notifications may be delivered more than once; every
// consumer's effect must be safe to repeat.
type ObjectEvent struct {
	Bucket string
	Key    string
}

// DecodeEventKey undoes the URL encoding storage notifications apply to
// object keys ('+' for space, percent escapes).
func DecodeEventKey(raw string) string {
	decoded, err := url.QueryUnescape(strings.ReplaceAll(raw, "+", " "))
	if err != nil {
		return raw
	}
	return decoded
}
