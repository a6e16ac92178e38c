package twilio

import (
	"net/url"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the request signature on webhook calls.
const SignatureHeader = "X-Twilio-Signature"

// ValidSignature reports whether signature matches the request signed with authToken.
// Webhook parameters are single valued, so only the first value of each is checked.
func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	validator := twclient.NewRequestValidator(authToken)
	return validator.Validate(fullURL, flat, signature)
}
