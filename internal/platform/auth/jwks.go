package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksMaxAge bounds how long the published key set is trusted before it
// is fetched again. An unknown key ID forces an immediate refresh, so
// signer rotation does not lock callers out for the full interval.
const jwksMaxAge = 5 * time.Minute

// jwk is the slice of a JSON Web Key the verifier needs. Non-RSA entries
// in the set are skipped.
type jwk struct {
	KeyType  string `json:"kty"`
	KeyID    string `json:"kid"`
	Use      string `json:"use"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

// publicKey decodes the base64url modulus and exponent into an RSA key.
func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if exp.BitLen() > 31 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// keyStore caches the identity provider's signing keys. Fetches happen
// lazily on the request path; the mutex is held across the refresh so
// concurrent cache misses share one round trip instead of stampeding
// the endpoint.
type keyStore struct {
	issuer string
	client *http.Client
	maxAge time.Duration

	mu        sync.Mutex
	url       string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeyStore(jwksURL, issuer string) *keyStore {
	return &keyStore{
		issuer: issuer,
		url:    jwksURL,
		maxAge: jwksMaxAge,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// keyfunc adapts the store to the jwt parser.
func (s *keyStore) keyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header has no kid")
	}
	return s.lookup(kid)
}

// lookup returns the key for kid, refreshing the cached set when it is
// stale or does not contain kid.
func (s *keyStore) lookup(kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[kid]; ok && time.Since(s.fetchedAt) < s.maxAge {
		return key, nil
	}
	if err := s.refreshLocked(); err != nil {
		return nil, fmt.Errorf("refreshing JWKS: %w", err)
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no key %q in JWKS", kid)
	}
	return key, nil
}

// refreshLocked replaces the cached key set with the endpoint's current
// contents. The JWKS URL itself is discovered from the issuer on first
// use when not configured, so the server can start before the identity
// provider is reachable.
func (s *keyStore) refreshLocked() error {
	if s.url == "" {
		url, err := discoverJWKS(s.client, s.issuer)
		if err != nil {
			return err
		}
		s.url = url
	}

	resp, err := s.client.Get(s.url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	fresh := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.KeyType != "RSA" || k.KeyID == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue // skip malformed keys
		}
		fresh[k.KeyID] = pub
	}

	s.keys = fresh
	s.fetchedAt = time.Now()
	return nil
}

// discoverJWKS reads the issuer's well-known OpenID configuration and
// returns its jwks_uri.
func discoverJWKS(client *http.Client, issuer string) (string, error) {
	if issuer == "" {
		return "", errors.New("no JWKS URL configured and no issuer to discover one from")
	}

	well := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	resp, err := client.Get(well)
	if err != nil {
		return "", fmt.Errorf("OIDC discovery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OIDC discovery: status %d from %s", resp.StatusCode, well)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("OIDC discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("OIDC discovery: document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}
