package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Checksum computes the tamper-evidence code for an entry: HMAC-SHA256 over
// the pipe-joined identity fields and the millisecond timestamp, keyed by a
// server-held secret. Identical inputs and secret always produce the same
// checksum; changing any input changes it.
func Checksum(secret []byte, action, actorID, entityType, entityID string, at time.Time) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s|%d", action, actorID, entityType, entityID, at.UnixMilli())
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChecksum recomputes and compares in constant time.
func VerifyChecksum(secret []byte, e Entry) bool {
	if e.Checksum == "" {
		return !e.Flagged()
	}
	want := Checksum(secret, e.Action, e.ActorID, e.EntityType, e.EntityID, e.CreatedAt)
	return hmac.Equal([]byte(want), []byte(e.Checksum))
}
