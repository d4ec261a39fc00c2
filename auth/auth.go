// Package auth builds the logon prehash and its HMAC-SHA256 signature.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"fixfeed/errs"
	"fixfeed/models"
)

const soh = "\x01"

// Secret encodings accepted by DecodeSecret.
const (
	EncodingBase64 = "base64"
	EncodingRaw    = "raw"
)

// CreatePrehash joins the six logon values with SOH, in this order and with
// no leading or trailing delimiter.
func CreatePrehash(sendingTime, msgType, msgSeqNum, senderCompID, targetCompID, passphrase string) (string, error) {
	parts := []struct {
		name  string
		tag   int
		value string
	}{
		{"SendingTime", 52, sendingTime},
		{"MsgType", 35, msgType},
		{"MsgSeqNum", 34, msgSeqNum},
		{"SenderCompID", 49, senderCompID},
		{"TargetCompID", 56, targetCompID},
		{"Password", 554, passphrase},
	}
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.value == "" {
			return "", errs.MissingField(p.name, p.tag)
		}
		values = append(values, p.value)
	}
	return strings.Join(values, soh), nil
}

// PrehashFor is CreatePrehash over a LogonContext.
func PrehashFor(lc models.LogonContext) (string, error) {
	return CreatePrehash(lc.SendingTime, lc.MsgType, lc.MsgSeqNum, lc.SenderCompID, lc.TargetCompID, lc.Passphrase)
}

// Sign returns base64(HMAC-SHA256(secretKey, prehash)) using the secret bytes
// as given.
func Sign(secretKey, prehash string) (string, error) {
	if secretKey == "" {
		return "", errs.Configuration("credentials.secret_key", "secret key is empty")
	}
	return SignWithKey([]byte(secretKey), prehash)
}

// SignWithKey is Sign for an already decoded key.
func SignWithKey(key []byte, prehash string) (string, error) {
	if len(key) == 0 {
		return "", errs.Configuration("credentials.secret_key", "secret key is empty")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DecodeSecret turns the configured secret into HMAC key bytes.
func DecodeSecret(secret, encoding string) ([]byte, error) {
	if secret == "" {
		return nil, errs.Configuration("credentials.secret_key", "secret key is empty")
	}
	switch strings.ToLower(encoding) {
	case "", EncodingBase64:
		key, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, errs.Configuration("credentials.secret_key", fmt.Sprintf("secret key is not valid base64: %v", err))
		}
		return key, nil
	case EncodingRaw:
		return []byte(secret), nil
	default:
		return nil, errs.Configuration("credentials.secret_encoding", fmt.Sprintf("unsupported encoding %q", encoding))
	}
}

// Signer holds a decoded key for repeated logons.
type Signer struct {
	key []byte
}

// NewSigner decodes the secret once.
func NewSigner(secret, encoding string) (*Signer, error) {
	key, err := DecodeSecret(secret, encoding)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// Sign signs the prehash of the logon context.
func (s *Signer) Sign(lc models.LogonContext) (string, error) {
	if s == nil {
		return "", errs.Configuration("credentials.secret_key", "signer not configured")
	}
	prehash, err := PrehashFor(lc)
	if err != nil {
		return "", err
	}
	return SignWithKey(s.key, prehash)
}

// Wipe zeroes the key.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}
