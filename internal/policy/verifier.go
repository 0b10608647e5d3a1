package policy

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// PolicyClaims are the JWT claims carried in a policy's Signature field.
// The signature binds the policy identity and a digest of its payload, so a
// signed policy cannot be replayed with altered rules.
type PolicyClaims struct {
	jwt.RegisteredClaims
	PolicyID      string `json:"policy_id"`
	Version       string `json:"version"`
	PayloadSHA256 string `json:"payload_sha256"`
}

// JWTVerifier verifies policy signatures as RS256 compact JWS tokens.
// It implements Verifier.
type JWTVerifier struct {
	pub *rsa.PublicKey
}

// NewJWTVerifier creates a JWTVerifier for the given signing public key.
func NewJWTVerifier(pub *rsa.PublicKey) *JWTVerifier {
	return &JWTVerifier{pub: pub}
}

// ParseVerifierKey parses a PEM-encoded PKIX RSA public key.
func ParseVerifierKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in verifier key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse verifier key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("verifier key is %T, want *rsa.PublicKey", key)
	}
	return pub, nil
}

// Verify implements Verifier. It checks the JWS signature and that the
// claims match the policy's identity and payload digest.
func (v *JWTVerifier) Verify(p *Policy) bool {
	token, err := jwt.ParseWithClaims(
		p.Signature,
		&PolicyClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return v.pub, nil
		},
	)
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(*PolicyClaims)
	if !ok {
		return false
	}
	return claims.PolicyID == p.PolicyID &&
		claims.Version == p.Version &&
		claims.PayloadSHA256 == payloadDigest(p.Payload)
}

// Signer produces policy signatures accepted by JWTVerifier. It exists for
// operator tooling and tests; the registry itself never signs.
type Signer struct {
	key    *rsa.PrivateKey
	issuer string
}

// NewSigner creates a Signer. issuer is recorded in the "iss" claim.
func NewSigner(key *rsa.PrivateKey, issuer string) *Signer {
	return &Signer{key: key, issuer: issuer}
}

// Sign returns a compact JWS signature for p.
func (s *Signer) Sign(p *Policy) (string, error) {
	claims := PolicyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  s.issuer,
			Subject: p.PolicyID,
		},
		PolicyID:      p.PolicyID,
		Version:       p.Version,
		PayloadSHA256: payloadDigest(p.Payload),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign policy: %w", err)
	}
	return signed, nil
}

// payloadDigest returns the hex SHA-256 of a policy payload.
func payloadDigest(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
