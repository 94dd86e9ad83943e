package auth

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var errInvalidCredentialFormat = errors.New("invalid authorization header format")

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value.
// An empty value yields ErrMissingCredential; anything else that is not a single bearer
// token yields ErrMalformedCredential.
func ExtractBearer(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", NewTrustError(KindMissingCredential, "", nil)
	}

	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, DefaultScheme) {
		return "", NewTrustError(KindMalformedCredential, "", errInvalidCredentialFormat)
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", NewTrustError(KindMalformedCredential, "", errInvalidCredentialFormat)
	}
	return token, nil
}
