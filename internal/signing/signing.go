// Package signing generates and verifies HMAC signed download and view URLs.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrMissing = errors.New("missing signature")
	ErrExpired = errors.New("url expired")
	ErrInvalid = errors.New("invalid signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for one action on one document.
func (s *Signer) Sign(documentID, action string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%d", documentID, action, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(documentID, action, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(documentID, action, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Query returns the expires and signature parameters for a URL valid for ttl.
func (s *Signer) Query(documentID, action string, ttl time.Duration) url.Values {
	exp := s.now().Add(ttl).Unix()
	v := url.Values{}
	v.Set("expires", strconv.FormatInt(exp, 10))
	v.Set("signature", s.Sign(documentID, action, exp))
	return v
}

// Check verifies the expires and signature parameters of q. When required is
// false, a URL without both parameters passes.
func (s *Signer) Check(documentID, action string, q url.Values, required bool) error {
	expires, signature := q.Get("expires"), q.Get("signature")
	if expires == "" && signature == "" {
		if required {
			return ErrMissing
		}
		return nil
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalid
	}
	if s.now().Unix() > exp {
		return ErrExpired
	}
	if !s.Validate(documentID, action, expires, signature) {
		return ErrInvalid
	}
	return nil
}
