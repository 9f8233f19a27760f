package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how old a webhook timestamp may be before
// the event is rejected as a possible replay of a captured request.
const SignatureTolerance = 5 * time.Minute

// errInvalidSignature is deliberately opaque: callers surface it as a
// plain bad request without disclosing which check failed.
var errInvalidSignature = errors.New("webhook signature verification failed")

// VerifyWebhookSignature checks a "t=<unix>,v1=<hex>" signature header
// against HMAC-SHA256 of "<t>.<payload>" keyed with the shared webhook
// secret.
func (c *Client) VerifyWebhookSignature(payload []byte, header string) error {
	return verifySignature(payload, header, c.webhookSecret, time.Now())
}

func verifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" || secret == "" {
		return errInvalidSignature
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return errInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errInvalidSignature
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(SignatureTolerance/time.Second) {
		return errInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		sig, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return errInvalidSignature
}
