// Package webhook delivers outbox events to tenant endpoints as signed HTTP
// POSTs with bounded retries.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-Id"
	HeaderEvent     = "X-Webhook-Event"

	secretPrefix = "whsec_"
)

// Sign returns hex(HMAC-SHA256(secret, "<timestamp>.<payload>")). Binding the
// timestamp lets receivers reject replays outside their tolerance window.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSecret returns a new random endpoint signing secret
func GenerateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(b), nil
}
