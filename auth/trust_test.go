package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	publicIssuer   = "http://localhost:8080/realms/microservices-realm"
	internalIssuer = "http://keycloak:8080/realms/microservices-realm"
	foreignIssuer  = "http://evil.example/realms/microservices-realm"
)

type testKey struct {
	kid string
	key *rsa.PrivateKey
}

func newSigningKey(t *testing.T, kid string) testKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testKey{kid: kid, key: key}
}

func (k testKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.key)
	require.NoError(t, err)
	return signed
}

func (k testKey) jwk() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &k.key.PublicKey, KeyID: k.kid, Algorithm: "RS256", Use: "sig"}
}

// keyServer publishes a key set and counts how often it was fetched.
type keyServer struct {
	mu      sync.Mutex
	keys    []testKey
	status  int
	fetches atomic.Int32
	srv     *httptest.Server
}

func newKeyServer(t *testing.T, keys ...testKey) *keyServer {
	t.Helper()
	ks := &keyServer{keys: keys, status: http.StatusOK}
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ks.fetches.Add(1)
		ks.mu.Lock()
		defer ks.mu.Unlock()
		if ks.status != http.StatusOK {
			w.WriteHeader(ks.status)
			return
		}
		set := jose.JSONWebKeySet{}
		for _, k := range ks.keys {
			set.Keys = append(set.Keys, k.jwk())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(ks.srv.Close)
	return ks
}

func (ks *keyServer) publish(keys ...testKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = keys
}

func (ks *keyServer) fail(status int) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.status = status
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator(t *testing.T, ks *keyServer, opts ...ConfigOption) *Validator {
	t.Helper()
	cfg := NewConfig(append([]ConfigOption{
		WithTrustedIssuers(publicIssuer, internalIssuer),
		WithKeySetURL(publicIssuer, ks.srv.URL),
		WithKeySetURL(internalIssuer, ks.srv.URL),
		WithRefreshFloor(0),
	}, opts...)...)
	keys := NewKeySetCache(cfg, NewKeySetFetcher(resty.New()))
	v, err := NewValidator(cfg, keys, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return v
}

func claimsFor(issuer string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                issuer,
		"sub":                "f3b1c2d4",
		"preferred_username": "alice",
		"iat":                fixedNow.Add(-time.Minute).Unix(),
		"exp":                fixedNow.Add(5 * time.Minute).Unix(),
	}
}

func TestValidatorAcceptsBothTrustedIssuers(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, k1)
	v := newTestValidator(t, ks)

	for _, iss := range []string{publicIssuer, internalIssuer} {
		claims, err := v.Validate(context.Background(), k1.sign(t, claimsFor(iss)))
		require.NoError(t, err, iss)
		assert.Equal(t, iss, claims.Issuer)
		assert.Equal(t, "alice", claims.PreferredUsername)
		assert.Equal(t, "f3b1c2d4", claims.Subject)
		assert.Equal(t, fixedNow.Add(5*time.Minute).Unix(), claims.ExpiresAt.Unix())
	}
}

func TestValidatorRejectsUntrustedIssuerBeforeFetching(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, k1)
	v := newTestValidator(t, ks)

	_, err := v.Validate(context.Background(), k1.sign(t, claimsFor(foreignIssuer)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUntrustedIssuer)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUntrustedIssuer, kind)
	assert.Equal(t, int32(0), ks.fetches.Load())
}

func TestValidatorTemporalWindow(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, k1)
	v := newTestValidator(t, ks)

	tests := []struct {
		name    string
		mutate  func(jwt.MapClaims)
		wantErr error
	}{
		{
			name:    "expired beyond skew",
			mutate:  func(c jwt.MapClaims) { c["exp"] = fixedNow.Add(-2 * time.Minute).Unix() },
			wantErr: ErrExpired,
		},
		{
			name:   "expired within skew",
			mutate: func(c jwt.MapClaims) { c["exp"] = fixedNow.Add(-30 * time.Second).Unix() },
		},
		{
			name:    "not before in the future",
			mutate:  func(c jwt.MapClaims) { c["nbf"] = fixedNow.Add(5 * time.Minute).Unix() },
			wantErr: ErrNotYetValid,
		},
		{
			name:    "issued in the future",
			mutate:  func(c jwt.MapClaims) { c["iat"] = fixedNow.Add(5 * time.Minute).Unix() },
			wantErr: ErrNotYetValid,
		},
		{
			name:   "issued within skew",
			mutate: func(c jwt.MapClaims) { c["iat"] = fixedNow.Add(30 * time.Second).Unix() },
		},
		{
			name:    "missing expiry",
			mutate:  func(c jwt.MapClaims) { delete(c, "exp") },
			wantErr: ErrMalformedCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := claimsFor(publicIssuer)
			tt.mutate(claims)
			_, err := v.Validate(context.Background(), k1.sign(t, claims))
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatorMalformedCredentials(t *testing.T) {
	ks := newKeyServer(t, newSigningKey(t, "k1"))
	v := newTestValidator(t, ks)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsFor(publicIssuer)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"empty":       "",
		"garbage":     "not-a-token",
		"alg none":    unsigned,
		"three parts": "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), credential)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedCredential)
		})
	}
	assert.Equal(t, int32(0), ks.fetches.Load())
}

func TestValidatorBadSignatureAfterOneRefresh(t *testing.T) {
	published := newSigningKey(t, "k1")
	forged := newSigningKey(t, "k1")
	ks := newKeyServer(t, published)
	v := newTestValidator(t, ks)

	_, err := v.Validate(context.Background(), forged.sign(t, claimsFor(publicIssuer)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, int32(2), ks.fetches.Load(), "initial fetch plus exactly one refresh")
}

func TestValidatorPicksUpRotatedKey(t *testing.T) {
	old := newSigningKey(t, "k1")
	rotated := newSigningKey(t, "k2")
	ks := newKeyServer(t, old)
	v := newTestValidator(t, ks)

	_, err := v.Validate(context.Background(), old.sign(t, claimsFor(publicIssuer)))
	require.NoError(t, err)

	ks.publish(old, rotated)
	_, err = v.Validate(context.Background(), rotated.sign(t, claimsFor(publicIssuer)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())

	// cached now
	_, err = v.Validate(context.Background(), rotated.sign(t, claimsFor(publicIssuer)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestValidatorRotationWithinRefreshFloor(t *testing.T) {
	old := newSigningKey(t, "k1")
	rotated := newSigningKey(t, "k2")
	ks := newKeyServer(t, old)
	v := newTestValidator(t, ks, WithRefreshFloor(DefaultRefreshFloor))

	_, err := v.Validate(context.Background(), old.sign(t, claimsFor(publicIssuer)))
	require.NoError(t, err)

	ks.publish(old, rotated)
	_, err = v.Validate(context.Background(), rotated.sign(t, claimsFor(publicIssuer)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestValidatorKnownKeyMismatchWithinRefreshFloor(t *testing.T) {
	published := newSigningKey(t, "k1")
	forged := newSigningKey(t, "k1")
	ks := newKeyServer(t, published)
	v := newTestValidator(t, ks, WithRefreshFloor(DefaultRefreshFloor))

	for range 3 {
		_, err := v.Validate(context.Background(), forged.sign(t, claimsFor(publicIssuer)))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadSignature)
	}
	assert.Equal(t, int32(1), ks.fetches.Load())
}

func TestValidatorUnknownKeyRefetchesOnce(t *testing.T) {
	ks := newKeyServer(t, newSigningKey(t, "k1"))
	v := newTestValidator(t, ks)

	_, err := v.Validate(context.Background(), newSigningKey(t, "ghost").sign(t, claimsFor(publicIssuer)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, int32(2), ks.fetches.Load(), "initial fetch plus exactly one reload")
}

func TestValidatorAcceptsDefaultAlgorithms(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, k1)
	v := newTestValidator(t, ks)

	for _, method := range []jwt.SigningMethod{
		jwt.SigningMethodRS384,
		jwt.SigningMethodPS384,
		jwt.SigningMethodPS512,
	} {
		t.Run(method.Alg(), func(t *testing.T) {
			token := jwt.NewWithClaims(method, claimsFor(publicIssuer))
			token.Header["kid"] = k1.kid
			signed, err := token.SignedString(k1.key)
			require.NoError(t, err)

			_, err = v.Validate(context.Background(), signed)
			require.NoError(t, err)
		})
	}
	assert.Contains(t, DefaultAlgorithms, jwt.SigningMethodES512.Alg())
}

func TestValidatorKeySetUnavailable(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, k1)
	ks.fail(http.StatusBadGateway)
	v := newTestValidator(t, ks)

	_, err := v.Validate(context.Background(), k1.sign(t, claimsFor(publicIssuer)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeySetUnavailable)
	kind, _ := KindOf(err)
	assert.Equal(t, http.StatusServiceUnavailable, kind.StatusCode())
	assert.Equal(t, "temporarily_unavailable", kind.OAuthCode())
}

func TestValidatorCredentialWithoutKeyID(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	ks := newKeyServer(t, newSigningKey(t, "other"), k1)
	v := newTestValidator(t, ks)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor(internalIssuer))
	signed, err := token.SignedString(k1.key)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), signed)
	require.NoError(t, err)
}

func TestNewValidatorRequiresIssuer(t *testing.T) {
	_, err := NewValidator(NewConfig(), nil)
	require.Error(t, err)
}

func TestTrustedIssuerSet(t *testing.T) {
	set, err := NewTrustedIssuerSet(publicIssuer, internalIssuer)
	require.NoError(t, err)

	assert.True(t, set.Contains(publicIssuer))
	assert.False(t, set.Contains(publicIssuer+"/"))
	assert.Equal(t, []string{internalIssuer, publicIssuer}, set.Issuers())

	_, err = NewTrustedIssuerSet()
	require.Error(t, err)
	_, err = NewTrustedIssuerSet(" ")
	require.Error(t, err)
}
