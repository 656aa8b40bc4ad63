package signing

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestEngines_KnownVector(t *testing.T) {
	const want = "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	payload := []byte("The quick brown fox jumps over the lazy dog")

	for _, e := range []Engine{StdEngine{}, SIMDEngine{}, SelectEngine()} {
		t.Run(e.Name(), func(t *testing.T) {
			assert.Equal(t, want, e.Sign(payload, []byte("key")))
		})
	}
}

func TestEngines_ByteIdentical(t *testing.T) {
	inputs := []struct{ payload, secret string }{
		{"", ""},
		{`{"a":1}abc1700000000`, "s3cret"},
		{string(make([]byte, 4096)), "k"},
		{"unicode ✓ body", "another-secret-that-is-longer-than-the-sha256-block-size-of-64-bytes-total"},
	}
	for _, in := range inputs {
		assert.Equal(t,
			StdEngine{}.Sign([]byte(in.payload), []byte(in.secret)),
			SIMDEngine{}.Sign([]byte(in.payload), []byte(in.secret)),
		)
	}
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign(`{"x":1}`, "n-1", "1700000000", "secret")
	b := Sign(`{"x":1}`, "n-1", "1700000000", "secret")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, StdEngine{}.Sign([]byte(`{"x":1}n-11700000000`), []byte("secret")), a)
	assert.NotEqual(t, a, Sign(`{"x":1}`, "n-2", "1700000000", "secret"))
}

func TestForm_Payload(t *testing.T) {
	in := PayloadInput{Method: "post", URI: "/api/orders?x=1", Body: "{}", Nonce: "N", Timestamp: "T"}

	tests := []struct {
		form Form
		want string
	}{
		{FormBodyNonceTimestamp, "{}NT"},
		{FormTimestampNonceMethodURIBody, "TNPOST/api/orders?x=1{}"},
		{FormNonceTimestampMethodURIBody, "NTPOST/api/orders?x=1{}"},
		{Form("unknown"), "{}NT"},
	}
	for _, tt := range tests {
		t.Run(string(tt.form), func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.form.Payload(in)))
		})
	}
}

func TestForm_UnmarshalText(t *testing.T) {
	var f Form
	require.NoError(t, f.UnmarshalText([]byte("")))
	assert.Equal(t, FormBodyNonceTimestamp, f)

	require.NoError(t, f.UnmarshalText([]byte(" Timestamp_Nonce_Method_URI_Body ")))
	assert.Equal(t, FormTimestampNonceMethodURIBody, f)

	assert.Error(t, f.UnmarshalText([]byte("body_only")))
}

func TestNonceSource_Unique(t *testing.T) {
	src := NewNonceSource()
	seen := make(map[string]struct{})
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				n := src.Next()
				mu.Lock()
				seen[n.Value] = struct{}{}
				mu.Unlock()
				assert.False(t, n.Fallback)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 2000)
}

func TestNonceSource_FallbackOnEntropyFailure(t *testing.T) {
	src := NewNonceSourceFromReader(failingReader{})

	a := src.Next()
	b := src.Next()

	assert.True(t, a.Fallback)
	assert.Len(t, a.Value, 26)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, "1700000000", Timestamp(time.Unix(1700000000, 999)))
}

func TestSigner_Envelope(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := NewSigner(SignerOptions{Engine: StdEngine{}, Now: func() time.Time { return now }})

	t.Run("missing secret fails closed", func(t *testing.T) {
		_, err := signer.Envelope(EnvelopeInput{Body: "{}"})
		assert.ErrorIs(t, err, ErrMissingSecret)
	})

	t.Run("fresh nonce per request", func(t *testing.T) {
		a, err := signer.Envelope(EnvelopeInput{Body: "{}", Secret: "s"})
		require.NoError(t, err)
		b, err := signer.Envelope(EnvelopeInput{Body: "{}", Secret: "s"})
		require.NoError(t, err)

		assert.Equal(t, "1700000000", a.Timestamp)
		assert.NotEqual(t, a.Nonce, b.Nonce)
		assert.NotEqual(t, a.Signature, b.Signature)
		assert.Equal(t, Sign("{}", a.Nonce, a.Timestamp, "s"), a.Signature)
	})

	t.Run("apply overwrites headers", func(t *testing.T) {
		env, err := signer.Envelope(EnvelopeInput{Secret: "s"})
		require.NoError(t, err)

		h := http.Header{}
		h.Set(HeaderSignature, "spoofed")
		env.Apply(h)

		assert.Equal(t, env.Signature, h.Get(HeaderSignature))
		assert.Equal(t, env.Nonce, h.Get(HeaderNonce))
		assert.Equal(t, env.Timestamp, h.Get(HeaderTimestamp))
	})

	t.Run("method uri form", func(t *testing.T) {
		s := NewSigner(SignerOptions{Engine: StdEngine{}, Form: FormTimestampNonceMethodURIBody, Now: func() time.Time { return now }})
		env, err := s.Envelope(EnvelopeInput{Method: "get", URI: "/api/x", Secret: "s"})
		require.NoError(t, err)

		want := StdEngine{}.Sign([]byte(env.Timestamp+env.Nonce+"GET/api/x"), []byte("s"))
		assert.Equal(t, want, env.Signature)
	})
}
