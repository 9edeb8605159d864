package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer issues time-limited signed URLs for stored objects. Message rows hold
// only (bucket, path); callers resolve a fresh URL on every read rather than
// caching one across sessions, since the signature expires.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration

	now func() time.Time
}

func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SignedURL returns a URL for (bucket, path) valid until the configured TTL.
func (s *Signer) SignedURL(bucket, path string) (string, error) {
	if bucket == "" || path == "" {
		return "", fmt.Errorf("bucket and path are required")
	}

	expires := s.now().Add(s.ttl).Unix()
	sig := s.sign(bucket, path, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)

	return fmt.Sprintf("%s/%s/%s?%s", s.baseURL, url.PathEscape(bucket), path, q.Encode()), nil
}

// Verify checks a signature produced by SignedURL and that it has not expired.
func (s *Signer) Verify(bucket, path string, expires int64, signature string) bool {
	if s.now().Unix() > expires {
		return false
	}
	expected := s.sign(bucket, path, expires)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Signer) sign(bucket, path string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d", bucket, path, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
