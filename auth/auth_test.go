package auth

import (
	"encoding/base64"
	"errors"
	"testing"

	"fixfeed/errs"
	"fixfeed/models"
)

func TestCreatePrehashLayout(t *testing.T) {
	got, err := CreatePrehash("20240101-00:00:00.000", "A", "1", "S", "T", "P")
	if err != nil {
		t.Fatalf("CreatePrehash: %v", err)
	}
	want := "20240101-00:00:00.000\x01A\x011\x01S\x01T\x01P"
	if got != want {
		t.Fatalf("prehash mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestCreatePrehashMissingField(t *testing.T) {
	cases := []struct {
		name  string
		args  [6]string
		field string
	}{
		{"sending time", [6]string{"", "A", "1", "S", "T", "P"}, "SendingTime"},
		{"seq num", [6]string{"ts", "A", "", "S", "T", "P"}, "MsgSeqNum"},
		{"passphrase", [6]string{"ts", "A", "1", "S", "T", ""}, "Password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreatePrehash(tc.args[0], tc.args[1], tc.args[2], tc.args[3], tc.args[4], tc.args[5])
			var mf *errs.MissingFieldError
			if !errors.As(err, &mf) {
				t.Fatalf("expected MissingFieldError, got %v", err)
			}
			if mf.Field != tc.field {
				t.Errorf("got field %s want %s", mf.Field, tc.field)
			}
		})
	}
}

func TestSignKnownVector(t *testing.T) {
	got, err := Sign("key", "The quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if want := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="; got != want {
		t.Fatalf("signature mismatch: got %s want %s", got, want)
	}
}

func TestSignDeterministic(t *testing.T) {
	prehash, _ := CreatePrehash("20240101-00:00:00.000", "A", "1", "S", "T", "P")
	a, err := Sign("secret", prehash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, _ := Sign("secret", prehash)
	if a != b {
		t.Fatalf("signature not deterministic: %s vs %s", a, b)
	}
	raw, err := base64.StdEncoding.DecodeString(a)
	if err != nil || len(raw) != 32 {
		t.Fatalf("expected 32 byte digest, got %d (%v)", len(raw), err)
	}
}

func TestSignEmptySecret(t *testing.T) {
	if _, err := Sign("", "x"); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDecodeSecret(t *testing.T) {
	key, err := DecodeSecret(base64.StdEncoding.EncodeToString([]byte("key")), EncodingBase64)
	if err != nil || string(key) != "key" {
		t.Fatalf("base64 decode: %q %v", key, err)
	}
	if key, _ := DecodeSecret("key", EncodingRaw); string(key) != "key" {
		t.Fatalf("raw decode: %q", key)
	}
	if _, err := DecodeSecret("not base64!", EncodingBase64); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := DecodeSecret("key", "hex"); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown encoding, got %v", err)
	}
}

func TestSignerMatchesFunctions(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("key"))
	s, err := NewSigner(secret, EncodingBase64)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	lc := models.LogonContext{SendingTime: "ts", MsgType: "A", MsgSeqNum: "1", SenderCompID: "S", TargetCompID: "T", Passphrase: "P"}
	got, err := s.Sign(lc)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	prehash, _ := PrehashFor(lc)
	want, _ := Sign("key", prehash)
	if got != want {
		t.Fatalf("signer mismatch: %s vs %s", got, want)
	}
	s.Wipe()
	if _, err := s.Sign(lc); err == nil {
		t.Fatalf("expected error after wipe")
	}
}
