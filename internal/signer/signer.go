// Package signer issues and reads license tokens.
//
// Two read paths exist on purpose. Decode only parses the token structure and
// trusts nothing; Verify checks the signature against the signer's public key.
// Authorization decisions are made against the record store either way.
package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrSigning        = errors.New("signing error")
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("token signature invalid")
)

// Claims is the license token payload.
type Claims struct {
	User     string          `json:"user"`
	HWID     string          `json:"hwid"`
	Features map[string]bool `json:"features,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims builds claims with jti=id and sub=licenseKey; times are unix seconds.
func NewClaims(id, licenseKey, user, hwid string, issuedAt, expiresAt int64, features map[string]bool) Claims {
	return Claims{
		User:     user,
		HWID:     hwid,
		Features: features,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   licenseKey,
			IssuedAt:  jwt.NewNumericDate(unix(issuedAt)),
			ExpiresAt: jwt.NewNumericDate(unix(expiresAt)),
		},
	}
}

// Signer holds the private key. It is immutable after New and safe for
// concurrent use.
type Signer struct {
	method jwt.SigningMethod
	key    crypto.PrivateKey
	public crypto.PublicKey
}

// New parses an RSA, ECDSA or Ed25519 private key in PEM form.
func New(pemBytes []byte) (*Signer, error) {
	if rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes); err == nil {
		return &Signer{method: jwt.SigningMethodRS256, key: rsaKey, public: &rsaKey.PublicKey}, nil
	}
	if ecKey, err := jwt.ParseECPrivateKeyFromPEM(pemBytes); err == nil {
		method, err := ecMethod(ecKey)
		if err != nil {
			return nil, err
		}
		return &Signer{method: method, key: ecKey, public: &ecKey.PublicKey}, nil
	}
	edKey, err := jwt.ParseEdPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not a PEM encoded RSA, ECDSA or Ed25519 key", ErrSigning)
	}
	priv, ok := edKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrSigning, edKey)
	}
	return &Signer{method: jwt.SigningMethodEdDSA, key: priv, public: priv.Public()}, nil
}

func ecMethod(key *ecdsa.PrivateKey) (jwt.SigningMethod, error) {
	switch key.Curve.Params().BitSize {
	case 256:
		return jwt.SigningMethodES256, nil
	case 384:
		return jwt.SigningMethodES384, nil
	case 521:
		return jwt.SigningMethodES512, nil
	}
	return nil, fmt.Errorf("%w: unsupported curve %s", ErrSigning, key.Curve.Params().Name)
}

// Algorithm is the JWT alg header value used for signing.
func (s *Signer) Algorithm() string {
	return s.method.Alg()
}

// Sign encodes and signs claims. jti, iat and exp must be set; nothing else
// is checked.
func (s *Signer) Sign(claims Claims) (string, error) {
	if claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: claims need jti, iat and exp", ErrSigning)
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return token, nil
}

// Decode parses the token without checking its signature.
func Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// Decode is the method form of the package-level Decode.
func (s *Signer) Decode(raw string) (*Claims, error) {
	return Decode(raw)
}

// Verify checks the signature with the signer's public key. Time claims are
// left to the caller: an expired license still has a valid token.
func (s *Signer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.public, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// PublicKeyPEM returns the PKIX encoded public key for offline verification.
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(s.public)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0)
}
