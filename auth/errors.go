package auth

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind classifies why a credential was not trusted.
type Kind int

const (
	KindMissingCredential Kind = iota + 1
	KindMalformedCredential
	KindUntrustedIssuer
	KindBadSignature
	KindExpired
	KindNotYetValid
	KindKeySetUnavailable
)

var kindNames = map[Kind]string{
	KindMissingCredential:   "missing_credential",
	KindMalformedCredential: "malformed_credential",
	KindUntrustedIssuer:     "untrusted_issuer",
	KindBadSignature:        "bad_signature",
	KindExpired:             "expired",
	KindNotYetValid:         "not_yet_valid",
	KindKeySetUnavailable:   "key_set_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// StatusCode is the HTTP status a boundary answers with.
// Only an unreachable key set is the server's fault.
func (k Kind) StatusCode() int {
	if k == KindKeySetUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

// OAuthCode is the RFC 6750 error code written in the response body.
func (k Kind) OAuthCode() string {
	switch k {
	case KindMissingCredential:
		return "unauthorized"
	case KindKeySetUnavailable:
		return "temporarily_unavailable"
	default:
		return "invalid_token"
	}
}

// Sentinels matched by errors.Is against any *TrustError of the same kind.
var (
	ErrMissingCredential   = errors.New("credential not found")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrUntrustedIssuer     = errors.New("untrusted issuer")
	ErrBadSignature        = errors.New("bad signature")
	ErrExpired             = errors.New("credential expired")
	ErrNotYetValid         = errors.New("credential not yet valid")
	ErrKeySetUnavailable   = errors.New("key set unavailable")
)

var kindSentinels = map[Kind]error{
	KindMissingCredential:   ErrMissingCredential,
	KindMalformedCredential: ErrMalformedCredential,
	KindUntrustedIssuer:     ErrUntrustedIssuer,
	KindBadSignature:        ErrBadSignature,
	KindExpired:             ErrExpired,
	KindNotYetValid:         ErrNotYetValid,
	KindKeySetUnavailable:   ErrKeySetUnavailable,
}

// TrustError is returned for every credential that is not accepted.
type TrustError struct {
	Kind   Kind
	Issuer string
	cause  error
}

// NewTrustError wraps cause as a failure of kind. Issuer may be empty.
func NewTrustError(kind Kind, issuer string, cause error) *TrustError {
	return &TrustError{Kind: kind, Issuer: issuer, cause: cause}
}

func (e *TrustError) Error() string {
	msg := e.Kind.String()
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.Issuer != "" {
		msg = fmt.Sprintf("%s (issuer %q)", msg, e.Issuer)
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *TrustError) Unwrap() error { return e.cause }

// Is matches the sentinel of the error's kind.
func (e *TrustError) Is(target error) bool {
	return target == kindSentinels[e.Kind]
}

// KindOf returns the kind of the first TrustError in err's chain.
func KindOf(err error) (Kind, bool) {
	var terr *TrustError
	if errors.As(err, &terr) {
		return terr.Kind, true
	}
	return 0, false
}
