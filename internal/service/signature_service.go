package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"content-fulfillment-service/pkg/apperror"
)

// WebhookSignatureService implements ports.SignatureService for the payment
// processor's signature scheme: the header carries a unix timestamp and one
// or more HMAC-SHA256 digests of "{timestamp}.{body}", e.g.
//
//	Webhook-Signature: t=1690000000,v1=5257a869e7...
//
// Binding the timestamp into the signed payload makes replayed deliveries
// outside the tolerance window detectable even with a valid digest.
type WebhookSignatureService struct {
	tolerance time.Duration
}

// NewWebhookSignatureService creates a signature service with the given
// timestamp tolerance window.
func NewWebhookSignatureService(tolerance time.Duration) *WebhookSignatureService {
	return &WebhookSignatureService{tolerance: tolerance}
}

// Sign computes the hex-encoded HMAC-SHA256 digest of "{timestamp}.{body}".
func (s *WebhookSignatureService) Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against the raw body.
// Uses constant-time comparison to prevent timing attacks.
func (s *WebhookSignatureService) Verify(secret string, header string, body []byte, now time.Time) error {
	timestamp, digests, err := parseSignatureHeader(header)
	if err != nil {
		return apperror.ErrSignatureInvalid()
	}

	expected := s.Sign(secret, timestamp, body)
	matched := false
	for _, d := range digests {
		if hmac.Equal([]byte(expected), []byte(d)) {
			matched = true
		}
	}
	if !matched {
		return apperror.ErrSignatureInvalid()
	}

	// Tolerance check runs after the digest check so an attacker cannot
	// probe timestamps without a valid signature.
	delta := now.Sub(time.Unix(timestamp, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > s.tolerance {
		return apperror.ErrTimestampExpired()
	}
	return nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]".
func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64 = -1
	var digests []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", v)
			}
			timestamp = ts
		case "v1":
			digests = append(digests, v)
		}
	}

	if timestamp < 0 || len(digests) == 0 {
		return 0, nil, fmt.Errorf("missing timestamp or digest")
	}
	return timestamp, digests, nil
}
