// Package auth verifies bearer tokens on the plans API.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// subjectKey is the fiber Locals key holding the verified subject.
const subjectKey = "auth.subject"

// Config configures a Verifier. At least one of HMACSecret or RSAPublicKey is
// required. An empty Issuers list accepts any issuer.
type Config struct {
	Issuers      []string
	HMACSecret   []byte
	RSAPublicKey *rsa.PublicKey
	Leeway       time.Duration
}

// Verifier checks signature, expiry and issuer of JWTs.
type Verifier struct {
	parser       *jwt.Parser
	issuers      []string
	hmacSecret   []byte
	rsaPublicKey *rsa.PublicKey
}

// NewVerifier creates a Verifier from c.
func NewVerifier(c Config) (*Verifier, error) {
	var methods []string
	if len(c.HMACSecret) > 0 {
		methods = append(methods, "HS256", "HS384", "HS512")
	}
	if c.RSAPublicKey != nil {
		methods = append(methods, "RS256", "RS384", "RS512")
	}
	if len(methods) == 0 {
		return nil, errors.New("auth: an HMAC secret or RSA public key is required")
	}

	return &Verifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods(methods),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(c.Leeway),
		),
		issuers:      c.Issuers,
		hmacSecret:   c.HMACSecret,
		rsaPublicKey: c.RSAPublicKey,
	}, nil
}

// LoadRSAPublicKey reads a PEM encoded RSA public key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RSA public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA public key: %w", err)
	}
	return key, nil
}

// Verify parses and validates token and returns its registered claims.
func (v *Verifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if len(v.issuers) > 0 && !slices.Contains(v.issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: issuer %q is not trusted", ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.hmacSecret) > 0 {
			return v.hmacSecret, nil
		}
	case *jwt.SigningMethodRSA:
		if v.rsaPublicKey != nil {
			return v.rsaPublicKey, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
}

// Middleware rejects requests without a valid bearer token with 401. The
// verified subject is available to later handlers through Subject.
func Middleware(v *Verifier, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return func(c *fiber.Ctx) error {
		claims, err := v.Verify(bearerToken(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			logger.Debug("rejected request", "path", c.Path(), "error", err)
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="plans"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		c.Locals(subjectKey, claims.Subject)
		return c.Next()
	}
}

// Subject returns the subject of the verified token on c, or "".
func Subject(c *fiber.Ctx) string {
	s, _ := c.Locals(subjectKey).(string)
	return s
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
