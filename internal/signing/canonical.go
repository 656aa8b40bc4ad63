package signing

import (
	"fmt"
	"strings"
)

// Form selects the byte order of the signed payload.
// The backend must be configured with the same form.
type Form string

const (
	// FormBodyNonceTimestamp signs body + nonce + timestamp.
	FormBodyNonceTimestamp Form = "body_nonce_timestamp"
	// FormTimestampNonceMethodURIBody signs timestamp + nonce + METHOD + uri + body.
	FormTimestampNonceMethodURIBody Form = "timestamp_nonce_method_uri_body"
	// FormNonceTimestampMethodURIBody signs nonce + timestamp + METHOD + uri + body.
	FormNonceTimestampMethodURIBody Form = "nonce_timestamp_method_uri_body"
)

// UnmarshalText implements encoding.TextUnmarshaler for Form.
func (f *Form) UnmarshalText(text []byte) error {
	v := Form(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case "":
		*f = FormBodyNonceTimestamp
		return nil
	case FormBodyNonceTimestamp, FormTimestampNonceMethodURIBody, FormNonceTimestampMethodURIBody:
		*f = v
		return nil
	default:
		return fmt.Errorf(
			"invalid canonical form: %q (valid options: %s, %s, %s)",
			v, FormBodyNonceTimestamp, FormTimestampNonceMethodURIBody, FormNonceTimestampMethodURIBody,
		)
	}
}

// PayloadInput carries the request parts that may participate in a signature.
type PayloadInput struct {
	Method    string
	URI       string
	Body      string
	Nonce     string
	Timestamp string
}

// Payload builds the canonical bytes for the form. Unknown forms fall back to the default.
func (f Form) Payload(in PayloadInput) []byte {
	var b strings.Builder
	b.Grow(len(in.Body) + len(in.Nonce) + len(in.Timestamp) + len(in.Method) + len(in.URI))

	switch f {
	case FormTimestampNonceMethodURIBody:
		b.WriteString(in.Timestamp)
		b.WriteString(in.Nonce)
		b.WriteString(strings.ToUpper(in.Method))
		b.WriteString(in.URI)
		b.WriteString(in.Body)
	case FormNonceTimestampMethodURIBody:
		b.WriteString(in.Nonce)
		b.WriteString(in.Timestamp)
		b.WriteString(strings.ToUpper(in.Method))
		b.WriteString(in.URI)
		b.WriteString(in.Body)
	default:
		b.WriteString(in.Body)
		b.WriteString(in.Nonce)
		b.WriteString(in.Timestamp)
	}
	return []byte(b.String())
}
