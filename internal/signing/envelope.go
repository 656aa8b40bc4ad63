package signing

import (
	"errors"
	"net/http"
	"time"
)

// Header names carried by every signed request.
const (
	HeaderNonce     = "X-Nonce"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
	HeaderDeviceID  = "X-Device-ID"
)

// ErrMissingSecret is returned when no signing secret is available. Callers must not send the request.
var ErrMissingSecret = errors.New("signing secret is not configured")

// Envelope is the transient signing triple attached to one outbound request.
type Envelope struct {
	Nonce     string
	Timestamp string
	Signature string
	WeakNonce bool
}

// Apply sets the envelope headers, replacing any existing values.
func (e Envelope) Apply(h http.Header) {
	h.Set(HeaderNonce, e.Nonce)
	h.Set(HeaderTimestamp, e.Timestamp)
	h.Set(HeaderSignature, e.Signature)
}

// SignerOptions groups dependencies for Signer.
type SignerOptions struct {
	Engine Engine
	Form   Form
	Nonces *NonceSource
	Now    func() time.Time
}

// Signer builds envelopes for outbound requests.
type Signer struct {
	engine Engine
	form   Form
	nonces *NonceSource
	now    func() time.Time
}

// NewSigner constructs a Signer, filling unset options with production defaults.
func NewSigner(opts SignerOptions) *Signer {
	s := &Signer{
		engine: opts.Engine,
		form:   opts.Form,
		nonces: opts.Nonces,
		now:    opts.Now,
	}
	if s.engine == nil {
		s.engine = SelectEngine()
	}
	if s.form == "" {
		s.form = FormBodyNonceTimestamp
	}
	if s.nonces == nil {
		s.nonces = NewNonceSource()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// EnvelopeInput describes the request being signed.
type EnvelopeInput struct {
	Method string
	URI    string
	Body   string
	Secret string
}

// Envelope generates a fresh nonce and timestamp and signs the request.
func (s *Signer) Envelope(in EnvelopeInput) (Envelope, error) {
	if in.Secret == "" {
		return Envelope{}, ErrMissingSecret
	}

	nonce := s.nonces.Next()
	ts := Timestamp(s.now())
	payload := s.form.Payload(PayloadInput{
		Method:    in.Method,
		URI:       in.URI,
		Body:      in.Body,
		Nonce:     nonce.Value,
		Timestamp: ts,
	})

	return Envelope{
		Nonce:     nonce.Value,
		Timestamp: ts,
		Signature: s.engine.Sign(payload, []byte(in.Secret)),
		WeakNonce: nonce.Fallback,
	}, nil
}

// Digest returns the keyed hash of value. It is used to derive cache keys from tokens
// without storing the tokens themselves.
func (s *Signer) Digest(value, secret string) string {
	return s.engine.Sign([]byte(value), []byte(secret))
}

// Form reports the canonical form in use.
func (s *Signer) Form() Form { return s.form }
