package kyc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how far the signed timestamp may drift from now.
const DefaultTolerance = 5 * time.Minute

const (
	signatureTimestampKey = "t"
	signatureSchemeV1     = "v1"
)

// SignatureHeader is the parsed form of a `t=<unix>,v1=<hex>` header.
type SignatureHeader struct {
	Timestamp  time.Time
	Signatures [][]byte
}

// ParseSignatureHeader parses the provider signature header. Unknown keys and
// undecodable v1 entries are skipped.
func ParseSignatureHeader(header string) (*SignatureHeader, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, withMeta(ErrSignatureInvalid, map[string]any{
			"reason": "missing signature header",
		})
	}

	parsed := &SignatureHeader{}
	hasTimestamp := false

	for _, pair := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		switch key {
		case signatureTimestampKey:
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, withMeta(ErrSignatureInvalid, map[string]any{
					"reason": "invalid timestamp",
				})
			}
			parsed.Timestamp = time.Unix(unix, 0)
			hasTimestamp = true
		case signatureSchemeV1:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			parsed.Signatures = append(parsed.Signatures, sig)
		}
	}

	if !hasTimestamp {
		return nil, withMeta(ErrSignatureInvalid, map[string]any{
			"reason": "missing timestamp",
		})
	}

	if len(parsed.Signatures) == 0 {
		return nil, withMeta(ErrSignatureInvalid, map[string]any{
			"reason": "no v1 signatures",
		})
	}

	return parsed, nil
}

// ComputeSignature returns HMAC-SHA256(secret, "<unix>." + payload).
func ComputeSignature(timestamp time.Time, payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a signature header for payload, the way the provider
// does when delivering webhooks.
func SignPayload(payload, secret []byte, timestamp time.Time) string {
	sig := ComputeSignature(timestamp, payload, secret)
	return fmt.Sprintf("%s=%d,%s=%s", signatureTimestampKey, timestamp.Unix(), signatureSchemeV1, hex.EncodeToString(sig))
}

// VerifySignature checks the header against payload and secret. The digest
// is compared in constant time against every v1 candidate, then the
// timestamp is checked against tolerance (DefaultTolerance when <= 0).
func VerifySignature(payload []byte, header string, secret []byte, now time.Time, tolerance time.Duration) (*SignatureHeader, error) {
	if len(secret) == 0 {
		return nil, withMeta(ErrSignatureInvalid, map[string]any{
			"reason": "empty secret",
		})
	}

	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	expected := ComputeSignature(parsed.Timestamp, payload, secret)

	matched := false
	for _, candidate := range parsed.Signatures {
		if hmac.Equal(expected, candidate) {
			matched = true
		}
	}

	if !matched {
		return nil, withMeta(ErrSignatureInvalid, map[string]any{
			"reason": "signature mismatch",
		})
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	// compare instants, Sub saturates for timestamps far from now
	if parsed.Timestamp.Before(now.Add(-tolerance)) || parsed.Timestamp.After(now.Add(tolerance)) {
		return nil, withMeta(ErrTimestampStale, map[string]any{
			"timestamp": parsed.Timestamp.Unix(),
			"tolerance": tolerance.String(),
		})
	}

	return parsed, nil
}
