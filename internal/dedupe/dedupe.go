package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Hash derives the stable identity key for a lead from its normalized
// title, event date, and city. Identical normalized triples collide on
// purpose: the hash is the sole cross-run deduplication key, enforced by a
// unique constraint in the store. MD5 is fine here; stability matters,
// collision resistance does not.
func Hash(title, eventDate, city string) string {
	key := normalize(title) + "|" + normalize(eventDate) + "|" + normalize(city)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
