package token

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Sentinel failures surfaced by the codec. Resolution layers swallow these
// and degrade to "no identity"; imperative flows surface them to callers.
var (
	ErrMalformed = errors.New("malformed token")
	ErrInvalid   = errors.New("invalid token")
	ErrExpired   = errors.New("expired token")
)

// Config carries the signing key, clock, and validation parameters. Key
// material and the clock are injected here; the codec never reads either
// from process state.
type Config struct {
	SigningMethod SigningMethod
	// Key is the HS256 secret or the Ed25519 private key (raw or PEM).
	Key []byte
	// PublicKey is the Ed25519 verify key. Ignored for HS256.
	PublicKey []byte
	Issuer    string
	TTL       time.Duration
	Leeway    time.Duration
	// Now is the clock used for both issuance and validation. Defaults to
	// time.Now.
	Now func() time.Time
}

// Codec issues and verifies signed bearer tokens carrying a subject
// identity. A Codec holds no mutable state and is safe for unlimited
// concurrent use.
type Codec struct {
	config Config
}

type bearerClaims struct {
	jwt.RegisteredClaims
}

// NewCodec validates the configuration and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Key) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.Key); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Codec{config: cfg}, nil
}

// Issue produces a signed token embedding subject and an expiry of
// now + TTL. Pure function of the input, signing key, and clock.
func (c *Codec) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("empty subject")
	}

	now := c.config.Now()
	claims := bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.TTL)),
			Issuer:    c.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	key, err := c.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// ExtractSubject returns the subject embedded in tok. The signature and
// structure are checked; expiry is not. Callers that care about freshness
// follow up with IsValid or use ValidateAndExtract. Fails with
// [ErrMalformed] when the token cannot be trusted at all.
func (c *Codec) ExtractSubject(tok string) (string, error) {
	claims, err := c.parse(tok)
	if err != nil && !errors.Is(err, ErrExpired) {
		return "", ErrMalformed
	}
	if claims == nil || claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

// IsValid reports whether tok carries a good signature, is unexpired, and
// names expectedSubject.
func (c *Codec) IsValid(tok, expectedSubject string) bool {
	claims, err := c.parse(tok)
	if err != nil || claims == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(expectedSubject)) == 1
}

// ValidateAndExtract performs the combined check used when the expected
// subject is not yet known. Fails with [ErrMalformed], [ErrInvalid], or
// [ErrExpired].
func (c *Codec) ValidateAndExtract(tok string) (string, error) {
	claims, err := c.parse(tok)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

func (c *Codec) parse(tok string) (*bearerClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(c.config.Now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tok, &bearerClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		claims, _ := claimsOf(parsed)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return claims, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenInvalidClaims):
			return nil, ErrInvalid
		default:
			return nil, ErrInvalid
		}
	}

	claims, ok := claimsOf(parsed)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

func claimsOf(tok *jwt.Token) (*bearerClaims, bool) {
	if tok == nil {
		return nil, false
	}
	claims, ok := tok.Claims.(*bearerClaims)
	return claims, ok
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.Key, nil
	default:
		return parseEdPrivateKey(c.config.Key)
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.Key, nil
	default:
		if len(c.config.PublicKey) > 0 {
			return parseEdPublicKey(c.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(c.config.Key)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
