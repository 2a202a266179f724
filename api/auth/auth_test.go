package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/api/auth"
)

var secret = []byte("test-secret")

func signHMAC(claims jwt.RegisteredClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	Expect(err).NotTo(HaveOccurred())
	return token
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    "https://issuer.example.com",
		Subject:   "svc-billing",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

var _ = Describe("Verifier", func() {
	var verifier *auth.Verifier

	BeforeEach(func() {
		var err error
		verifier, err = auth.NewVerifier(auth.Config{
			Issuers:    []string{"https://issuer.example.com"},
			HMACSecret: secret,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a key", func() {
		_, err := auth.NewVerifier(auth.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("accepts a valid HMAC token", func() {
		claims, err := verifier.Verify(signHMAC(validClaims()))
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).To(Equal("svc-billing"))
	})

	It("rejects an empty token", func() {
		_, err := verifier.Verify("")
		Expect(err).To(MatchError(auth.ErrMissingToken))
	})

	It("rejects an expired token", func() {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

		_, err := verifier.Verify(signHMAC(claims))
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects a token without an expiry", func() {
		claims := validClaims()
		claims.ExpiresAt = nil

		_, err := verifier.Verify(signHMAC(claims))
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects an untrusted issuer", func() {
		claims := validClaims()
		claims.Issuer = "https://elsewhere.example.com"

		_, err := verifier.Verify(signHMAC(claims))
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects a token signed with another secret", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other"))
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.Verify(token)
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	It("rejects unsigned tokens", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.Verify(token)
		Expect(err).To(MatchError(auth.ErrInvalidToken))
	})

	Context("with an RSA key", func() {
		var (
			key     *rsa.PrivateKey
			keyPath string
		)

		BeforeEach(func() {
			var err error
			key, err = rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).NotTo(HaveOccurred())

			der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			Expect(err).NotTo(HaveOccurred())
			keyPath = filepath.Join(GinkgoT().TempDir(), "public.pem")
			Expect(os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600)).To(Succeed())
		})

		It("accepts tokens signed with the matching private key", func() {
			public, err := auth.LoadRSAPublicKey(keyPath)
			Expect(err).NotTo(HaveOccurred())

			v, err := auth.NewVerifier(auth.Config{RSAPublicKey: public})
			Expect(err).NotTo(HaveOccurred())

			token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
			Expect(err).NotTo(HaveOccurred())

			claims, err := v.Verify(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Issuer).To(Equal("https://issuer.example.com"))
		})

		It("rejects HMAC tokens when only RSA is configured", func() {
			public, err := auth.LoadRSAPublicKey(keyPath)
			Expect(err).NotTo(HaveOccurred())

			v, err := auth.NewVerifier(auth.Config{RSAPublicKey: public})
			Expect(err).NotTo(HaveOccurred())

			_, err = v.Verify(signHMAC(validClaims()))
			Expect(err).To(MatchError(auth.ErrInvalidToken))
		})
	})
})

var _ = Describe("Middleware", func() {
	var app *fiber.App

	BeforeEach(func() {
		verifier, err := auth.NewVerifier(auth.Config{HMACSecret: secret})
		Expect(err).NotTo(HaveOccurred())

		app = fiber.New()
		app.Use(auth.Middleware(verifier, nil))
		app.Get("/whoami", func(c *fiber.Ctx) error {
			return c.SendString(auth.Subject(c))
		})
	})

	It("returns 401 without a token", func() {
		req, err := http.NewRequest(http.MethodGet, "/whoami", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		Expect(resp.Header.Get(fiber.HeaderWWWAuthenticate)).To(ContainSubstring("Bearer"))
	})

	It("passes the subject to the handler", func() {
		req, err := http.NewRequest(http.MethodGet, "/whoami", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+signHMAC(validClaims()))

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("svc-billing"))
	})

	It("ignores non-bearer schemes", func() {
		req, err := http.NewRequest(http.MethodGet, "/whoami", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(fiber.HeaderAuthorization, "Basic dXNlcjpwYXNz")

		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
	})
})
