package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed    = errors.New("token: malformed")
	ErrExpired      = errors.New("token: expired")
	ErrBadSignature = errors.New("token: bad signature")
)

// Codec signs remote paths into self-describing expiring tokens of the form
//
//	base64url(path) "." unixExpiry "." hex(HMAC-SHA256(secret, payload))
//
// where payload is the first two fields joined by ".".
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

func (c *Codec) Sign(path string, ttl time.Duration) string {
	return c.SignAt(path, c.now().Add(ttl))
}

// SignAt mints a token that stops verifying after expiry. The expiry is
// carried in the token itself; nothing needs to be stored server-side.
func (c *Codec) SignAt(path string, expiry time.Time) string {
	payload := base64.URLEncoding.EncodeToString([]byte(path)) + "." + strconv.FormatInt(expiry.Unix(), 10)
	return payload + "." + c.tag(payload)
}

// Verify checks structure, expiry, then signature, and returns the remote
// path the token grants. The signature compare is constant-time.
func (c *Codec) Verify(tok string) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrMalformed
	}
	if c.now().Unix() > exp {
		return "", ErrExpired
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(c.tag(payload)), []byte(parts[2])) {
		return "", ErrBadSignature
	}
	raw, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformed
	}
	return string(raw), nil
}

func (c *Codec) tag(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
