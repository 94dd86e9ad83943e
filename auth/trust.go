package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	claimPreferredUsername = "preferred_username"
	keyUseSignature        = "sig"
)

var errUnknownKey = errors.New("no signing key matches the credential")

// TrustedIssuerSet is the fixed set of issuer URIs whose credentials are accepted.
// Membership is an exact string comparison.
type TrustedIssuerSet struct {
	members map[string]struct{}
}

// NewTrustedIssuerSet requires at least one issuer.
func NewTrustedIssuerSet(issuers ...string) (TrustedIssuerSet, error) {
	if len(issuers) == 0 {
		return TrustedIssuerSet{}, errors.New("at least one trusted issuer is required")
	}
	members := make(map[string]struct{}, len(issuers))
	for _, iss := range issuers {
		if strings.TrimSpace(iss) == "" {
			return TrustedIssuerSet{}, errors.New("trusted issuer must not be empty")
		}
		members[iss] = struct{}{}
	}
	return TrustedIssuerSet{members: members}, nil
}

func (s TrustedIssuerSet) Contains(issuer string) bool {
	_, ok := s.members[issuer]
	return ok
}

// Issuers returns the members in sorted order.
func (s TrustedIssuerSet) Issuers() []string {
	out := make([]string, 0, len(s.members))
	for iss := range s.members {
		out = append(out, iss)
	}
	slices.Sort(out)
	return out
}

// ValidatorOption is a functional option for configuring a Validator
type ValidatorOption func(*Validator)

// WithClock replaces the time source used for exp and nbf checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// Validator decides whether a bearer credential was issued by a trusted issuer, carries
// a valid signature, and is inside its validity window.
type Validator struct {
	issuers    TrustedIssuerSet
	keys       *KeySetCache
	skew       time.Duration
	algorithms []string
	now        func() time.Time
}

// NewValidator builds a Validator from cfg, fetching key sets through keys.
func NewValidator(cfg *Config, keys *KeySetCache, opts ...ValidatorOption) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid credential validation config")
	}
	issuers, err := NewTrustedIssuerSet(cfg.TrustedIssuers...)
	if err != nil {
		return nil, err
	}
	v := &Validator{
		issuers:    issuers,
		keys:       keys,
		skew:       cfg.ClockSkew,
		algorithms: cfg.Algorithms,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issuers returns the trusted issuer set.
func (v *Validator) Issuers() TrustedIssuerSet { return v.issuers }

// Validate verifies credential and returns its claims. Every rejection is a *TrustError.
// An untrusted issuer is rejected before any key material is fetched.
func (v *Validator) Validate(ctx context.Context, credential string) (Claims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Claims{}, NewTrustError(KindMalformedCredential, "", errors.New("empty credential"))
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(credential, jwt.MapClaims{})
	if err != nil {
		return Claims{}, NewTrustError(KindMalformedCredential, "", err)
	}
	if alg := unverified.Method.Alg(); !slices.Contains(v.algorithms, alg) {
		return Claims{}, NewTrustError(KindMalformedCredential, "", errors.Newf("signing algorithm %q is not accepted", alg))
	}
	issuer, err := unverified.Claims.GetIssuer()
	if err != nil {
		return Claims{}, NewTrustError(KindMalformedCredential, "", err)
	}
	if !v.issuers.Contains(issuer) {
		return Claims{}, NewTrustError(KindUntrustedIssuer, issuer, nil)
	}

	set, err := v.keys.Get(ctx, issuer)
	if err != nil {
		return Claims{}, v.keySetFailure(ctx, issuer, err)
	}

	refreshed := false
	if kid := keyID(unverified); kid != "" && !hasSigningKey(set, kid) {
		// An unknown kid means the issuer rotated its keys since the set was cached.
		if set, err = v.keys.Reload(ctx, issuer); err != nil {
			return Claims{}, v.keySetFailure(ctx, issuer, err)
		}
		refreshed = true
	}

	token, err := v.parse(credential, issuer, set)
	if err != nil && needsRefresh(err) && !refreshed {
		set, ferr := v.keys.Refresh(ctx, issuer)
		if ferr != nil {
			return Claims{}, v.keySetFailure(ctx, issuer, ferr)
		}
		token, err = v.parse(credential, issuer, set)
	}
	if err != nil {
		return Claims{}, classify(issuer, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, NewTrustError(KindMalformedCredential, issuer, errors.New("unexpected claims type"))
	}
	return claimsFrom(claims), nil
}

func (v *Validator) parse(credential, issuer string, set *jose.JSONWebKeySet) (*jwt.Token, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.algorithms),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	return parser.ParseWithClaims(credential, jwt.MapClaims{}, keyFunc(set))
}

// keySetFailure keeps caller cancellation distinguishable from an unreachable issuer.
func (v *Validator) keySetFailure(ctx context.Context, issuer string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.WithStack(ctxErr)
	}
	return NewTrustError(KindKeySetUnavailable, issuer, err)
}

func keyFunc(set *jose.JSONWebKeySet) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if kid := keyID(token); kid != "" {
			for _, k := range set.Key(kid) {
				if signingKey(k) {
					return k.Public().Key, nil
				}
			}
			return nil, errors.Wrapf(errUnknownKey, "kid %q", kid)
		}

		var keys jwt.VerificationKeySet
		for _, k := range set.Keys {
			if signingKey(k) {
				keys.Keys = append(keys.Keys, k.Public().Key)
			}
		}
		if len(keys.Keys) == 0 {
			return nil, errUnknownKey
		}
		return keys, nil
	}
}

func keyID(token *jwt.Token) string {
	kid, _ := token.Header["kid"].(string)
	return kid
}

func hasSigningKey(set *jose.JSONWebKeySet, kid string) bool {
	return slices.ContainsFunc(set.Key(kid), signingKey)
}

func signingKey(k jose.JSONWebKey) bool {
	return k.Use == "" || k.Use == keyUseSignature
}

func needsRefresh(err error) bool {
	return errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable)
}

func classify(issuer string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewTrustError(KindExpired, issuer, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return NewTrustError(KindNotYetValid, issuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return NewTrustError(KindUntrustedIssuer, issuer, err)
	case needsRefresh(err):
		return NewTrustError(KindBadSignature, issuer, err)
	default:
		return NewTrustError(KindMalformedCredential, issuer, err)
	}
}

func claimsFrom(mc jwt.MapClaims) Claims {
	c := Claims{Raw: map[string]any(mc)}
	c.Issuer, _ = mc.GetIssuer()
	c.Subject, _ = mc.GetSubject()
	c.PreferredUsername, _ = mc[claimPreferredUsername].(string)
	if t, _ := mc.GetIssuedAt(); t != nil {
		c.IssuedAt = t.Time
	}
	if t, _ := mc.GetNotBefore(); t != nil {
		c.NotBefore = t.Time
	}
	if t, _ := mc.GetExpirationTime(); t != nil {
		c.ExpiresAt = t.Time
	}
	return c
}
