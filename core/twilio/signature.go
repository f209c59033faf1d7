package twilio

import (
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the request signature computed by Twilio.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks webhook signatures against the account auth token.
type Validator struct {
	rv        client.RequestValidator
	publicURL string
}

// NewValidator returns a Validator. publicURL is the externally visible base URL
// (scheme and host) used to rebuild the signed URL behind proxies.
func NewValidator(authToken, publicURL string) *Validator {
	return &Validator{
		rv:        client.NewRequestValidator(authToken),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Validate reports whether the form-encoded request carries a valid signature.
// The request form must already be parsed.
func (v *Validator) Validate(r *http.Request) bool {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, vals := range r.PostForm {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	return v.rv.Validate(v.signedURL(r), params, sig)
}

func (v *Validator) signedURL(r *http.Request) string {
	if v.publicURL != "" {
		return v.publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
