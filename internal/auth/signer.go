// Package auth computes the signed headers sent with the websocket handshake.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"tradestream/pkg/core"
)

// Handshake header names.
const (
	HeaderAPIKey     = "DV-API-KEY"
	HeaderTimestamp  = "DV-TIMESTAMP"
	HeaderTimeWindow = "DV-TIMEWINDOW"
	HeaderSignature  = "DV-SIGNATURE"
)

// Sign returns base64(HMAC-SHA256(secretKey, apiKey + timestamp + timeWindow)) where
// timestamp and timeWindow are decimal milliseconds.
func Sign(apiKey, secretKey string, timeWindowMillis, timestampMillis int64) (string, error) {
	if apiKey == "" || secretKey == "" {
		return "", core.NewStreamError(core.ErrorTypeCrypto, "api key and secret are required for signing").
			WithCode(core.ErrCodeSignature).
			WithCause(core.ErrNoCredentials)
	}

	message := apiKey + strconv.FormatInt(timestampMillis, 10) + strconv.FormatInt(timeWindowMillis, 10)

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Signer produces fresh handshake headers for every connection attempt.
type Signer struct {
	creds      core.Credentials
	timeWindow time.Duration
	now        func() time.Time
}

// NewSigner creates a signer for the given credentials and validity window.
func NewSigner(creds core.Credentials, timeWindow time.Duration) *Signer {
	return &Signer{
		creds:      creds,
		timeWindow: timeWindow,
		now:        time.Now,
	}
}

// Headers stamps the current time and returns the four handshake headers.
// The same timestamp is used for the DV-TIMESTAMP header and the signature.
func (s *Signer) Headers() (http.Header, error) {
	ts := s.now().UnixMilli()
	window := s.timeWindow.Milliseconds()

	signature, err := Sign(s.creds.APIKey, s.creds.SecretKey, window, ts)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(HeaderAPIKey, s.creds.APIKey)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderTimeWindow, strconv.FormatInt(window, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}
