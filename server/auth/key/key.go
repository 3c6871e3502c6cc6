package key

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/lestrrat-go/jwx/jwk"
)

const KEY_ID = "villagevault-key-id"

type JWKS struct {
	Keys []interface{} `json:"keys"`
}

type KeyPair struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// NewKeyPairFromRSAPrivateKeyPem accepts either the PEM itself or a path to a PEM file.
func NewKeyPairFromRSAPrivateKeyPem(pemOrPath string) (*KeyPair, error) {
	privateKeyBytes := []byte(pemOrPath)
	if !strings.HasPrefix(strings.TrimSpace(pemOrPath), "-----BEGIN") {
		var err error
		privateKeyBytes, err = os.ReadFile(pemOrPath)
		if err != nil {
			return nil, err
		}
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse RSA private key: %v", err)
	}

	return NewKeyPair(privateKey), nil
}

// GenerateKeyPair creates a throwaway key pair, tokens signed with it do not
// survive a restart.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("unable to generate RSA key: %v", err)
	}

	return NewKeyPair(privateKey), nil
}

func NewKeyPair(privateKey *rsa.PrivateKey) *KeyPair {
	return &KeyPair{
		Kid:        KEY_ID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}
}

func (keyPair *KeyPair) JWK() (jwk.Key, error) {
	keyPairJWK, err := jwk.New(keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("JWK: %v", err)
	}
	keyPairJWK.Set(jwk.KeyIDKey, keyPair.Kid)
	keyPairJWK.Set(jwk.AlgorithmKey, "RS256")
	keyPairJWK.Set(jwk.KeyUsageKey, "sig")

	return keyPairJWK, nil
}

func ExportJWKAsJWKS(jwk jwk.Key) JWKS {
	return JWKS{Keys: []interface{}{jwk}}
}

func PublicKeyFromJWK(key jwk.Key) (*rsa.PublicKey, error) {
	publicKey := &rsa.PublicKey{}

	err := key.Raw(publicKey)
	if err != nil {
		return nil, err
	}

	return publicKey, nil
}
