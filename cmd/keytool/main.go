// Command keytool prepares secrets for the license server: a signing key for
// PRIVATE_KEY / PRIVATE_KEY_B64 and a bcrypt hash for OPERATOR_KEY_HASH.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"

	"license-server/internal/signer"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		alg         = flag.String("alg", "RS256", "signing algorithm: RS256, ES256 or EdDSA")
		bits        = flag.Int("bits", 2048, "RSA key size")
		out         = flag.String("out", "", "write the PEM key to this file instead of stdout")
		operatorKey = flag.String("operator-key", "", "print the bcrypt hash of this operator key and exit")
	)
	flag.Parse()

	if *operatorKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*operatorKey), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("bcrypt failed: %v", err)
		}
		fmt.Printf("OPERATOR_KEY_HASH=%s\n", hash)
		return
	}

	pemBytes, err := signer.GenerateKey(*alg, *bits)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	if *out != "" {
		if err := os.WriteFile(*out, pemBytes, 0o600); err != nil {
			log.Fatalf("write key: %v", err)
		}
		fmt.Printf("wrote %s key to %s\n", *alg, *out)
	} else {
		os.Stdout.Write(pemBytes)
	}
	fmt.Printf("PRIVATE_KEY_B64=%s\n", base64.StdEncoding.EncodeToString(pemBytes))
}
