package signing

import (
	"crypto/rand"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Nonce is a per-request value that blocks signature replay.
// Fallback is set when the value came from the ULID path: unique, but not unpredictable.
type Nonce struct {
	Value    string
	Fallback bool
}

// NonceSource produces request nonces. It is safe for concurrent use.
type NonceSource struct {
	random io.Reader
}

// NewNonceSource returns a source backed by crypto/rand.
func NewNonceSource() *NonceSource {
	return &NonceSource{random: rand.Reader}
}

// NewNonceSourceFromReader returns a source reading UUID entropy from r.
func NewNonceSourceFromReader(r io.Reader) *NonceSource {
	if r == nil {
		r = rand.Reader
	}
	return &NonceSource{random: r}
}

// Next returns a random UUIDv4, or a monotonic ULID when the entropy source fails.
func (s *NonceSource) Next() Nonce {
	if id, err := uuid.NewRandomFromReader(s.random); err == nil {
		return Nonce{Value: id.String()}
	}
	return Nonce{Value: ulid.Make().String(), Fallback: true}
}

// Timestamp formats t as unix seconds.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
