// Package signing canonicalises provider parameter sets and computes the keyed
// digests used to sign outbound payment requests and verify inbound notifications.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"net/url"
	"sort"
	"strings"
)

// Fields is an unordered set of provider parameters.
type Fields map[string]string

// Scheme describes how a field set is serialised and hashed.
type Scheme struct {
	// Name identifies the scheme in logs and metrics.
	Name string
	// Hash constructs the digest used by HMAC.
	Hash func() hash.Hash
	// Encode percent-encodes values before joining them.
	Encode bool
	// Order fixes the field order. Nil means keys are sorted ascending.
	Order []string
	// Exclude lists signature fields that never take part in the canonical string.
	Exclude []string
}

// SchemeSortedSHA512 sorts keys, percent-encodes values and signs with HMAC-SHA512.
var SchemeSortedSHA512 = Scheme{
	Name:   "sorted-hmac-sha512",
	Hash:   sha512.New,
	Encode: true,
}

// NewFixedOrderScheme returns a scheme that joins raw values in the given order and
// signs with HMAC-SHA256.
func NewFixedOrderScheme(name string, order ...string) Scheme {
	fixed := make([]string, len(order))
	copy(fixed, order)
	return Scheme{
		Name:  name,
		Hash:  sha256.New,
		Order: fixed,
	}
}

// WithExclude returns a copy of the scheme that additionally drops the provided keys.
func (s Scheme) WithExclude(keys ...string) Scheme {
	excl := make([]string, 0, len(s.Exclude)+len(keys))
	excl = append(excl, s.Exclude...)
	excl = append(excl, keys...)
	s.Exclude = excl
	return s
}

func (s Scheme) excluded(key string) bool {
	for _, k := range s.Exclude {
		if k == key {
			return true
		}
	}
	return false
}

func (s Scheme) keys(fields Fields) []string {
	if s.Order != nil {
		out := make([]string, 0, len(s.Order))
		for _, k := range s.Order {
			if !s.excluded(k) {
				out = append(out, k)
			}
		}
		return out
	}
	out := make([]string, 0, len(fields))
	for k := range fields {
		if !s.excluded(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Canonicalize renders the field set as "k=v&k=v" according to the scheme. With a
// fixed order, keys missing from fields render with an empty value and keys outside
// the order are ignored.
func Canonicalize(fields Fields, scheme Scheme) string {
	var b strings.Builder
	for i, k := range scheme.keys(fields) {
		if i > 0 {
			b.WriteByte('&')
		}
		v := fields[k]
		if scheme.Encode {
			v = EncodeValue(v)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

// Sign computes the lowercase hex HMAC of the canonical string.
func Sign(canonical, secret string, scheme Scheme) string {
	newHash := scheme.Hash
	if newHash == nil {
		newHash = sha256.New
	}
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignFields canonicalises and signs in one step.
func SignFields(fields Fields, secret string, scheme Scheme) string {
	return Sign(Canonicalize(fields, scheme), secret, scheme)
}

// Verify recomputes the digest for fields and compares it with the delivered
// signature, ignoring hex case. An empty secret or signature never verifies.
func Verify(fields Fields, signature, secret string, scheme Scheme) bool {
	provided := strings.ToLower(strings.TrimSpace(signature))
	if provided == "" || secret == "" {
		return false
	}
	expected := SignFields(fields, secret, scheme)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// EncodeValue percent-encodes a UTF-8 value the way query strings are signed:
// space becomes %20 and a literal plus becomes %2B.
func EncodeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
