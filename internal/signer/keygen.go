package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// GenerateKey creates a PKCS#8 PEM private key for alg (RS256, ES256 or EdDSA).
// bits only applies to RS256; values below 2048 fall back to 2048.
func GenerateKey(alg string, bits int) ([]byte, error) {
	var (
		key crypto.PrivateKey
		err error
	)
	switch strings.ToUpper(alg) {
	case "RS256", "RSA", "":
		if bits < 2048 {
			bits = 2048
		}
		key, err = rsa.GenerateKey(rand.Reader, bits)
	case "ES256", "EC", "ECDSA":
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "EDDSA", "ED25519":
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", alg, err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
