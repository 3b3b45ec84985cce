package messaging

import (
	"net/http"

	"github.com/twilio/twilio-go/client"
)

const signatureHeader = "X-Twilio-Signature"

// SignatureValidator checks X-Twilio-Signature against the account auth token.
type SignatureValidator struct {
	validator client.RequestValidator
}

// NewSignatureValidator creates a SignatureValidator for authToken.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

// Validate reports whether r was signed by Twilio for webhookURL. The request
// form must already be parsed.
func (v *SignatureValidator) Validate(r *http.Request, webhookURL string) bool {
	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return v.validator.Validate(webhookURL, params, signature)
}

// RequestURL rebuilds the absolute URL Twilio posted to, honouring proxy headers.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
