// Package cache stores rendered audio artifacts keyed by a content
// fingerprint of the request text.
package cache

import (
	"crypto/md5" // #nosec G501 -- cache key, not a security boundary
	"encoding/hex"
)

// Fingerprint returns the cache key for text: the 128-bit MD5 digest of the
// text rendered as 32 lowercase hex characters.
//
// The key deliberately covers the text only. Voice and sample-rate settings
// are not part of it, so cache entries are shared across voice
// configurations: after changing voice parameters, a hit may play audio
// rendered with the previous voice.
func Fingerprint(text string) string {
	digest := md5.Sum([]byte(text)) // #nosec G401

	return hex.EncodeToString(digest[:])
}
