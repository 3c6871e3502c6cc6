package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/villagevault/villagevault/server/auth/key"
	"golang.org/x/crypto/bcrypt"
)

const (
	ISSUER            = "villagevault"
	DEFAULT_TOKEN_TTL = 7 * 24 * time.Hour
)

// VillageVaultClaims is the payload of every bearer token. Subject holds the user id.
type VillageVaultClaims struct {
	Role      string `json:"role"`
	VillageID string `json:"villageId"`
	Name      string `json:"name"`
	jwt.StandardClaims
}

func NewClaims(userID, role, villageID, name string, ttl time.Duration) VillageVaultClaims {
	if ttl <= 0 {
		ttl = DEFAULT_TOKEN_TTL
	}

	now := time.Now()
	return VillageVaultClaims{
		Role:      role,
		VillageID: villageID,
		Name:      name,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    ISSUER,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
}

// HashSecret bcrypt-hashes short lived secrets such as OTP codes.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckSecretHash(secret, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

func EncodeJWT(claims VillageVaultClaims, keyPair *key.KeyPair) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod("RS256"), claims)
	token.Header["kid"] = keyPair.Kid

	tokenString, err := token.SignedString(keyPair.PrivateKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func DecodeJWT(tokenString string, keyPair *key.KeyPair) (*VillageVaultClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VillageVaultClaims{}, func(token *jwt.Token) (interface{}, error) {
		// validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return keyPair.PublicKey, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid jwt: %v", err)
	}

	tokenClaims, ok := token.Claims.(*VillageVaultClaims)
	if !ok {
		return nil, fmt.Errorf("unable to assert token.Claims to VillageVaultClaims")
	}

	return tokenClaims, nil
}
