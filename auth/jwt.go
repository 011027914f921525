package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/ssh"
)

// JWTClaims represents the claims in our JWT tokens.
type JWTClaims struct {
	KeyFingerprint string `json:"key_fingerprint"`
	jwt.RegisteredClaims
}

// CreateJWT creates a JWT token signed with a crypto private key. The key
// fingerprint claim identifies the SSH key so the server can look it up in
// its authorized keys.
func CreateJWT(privateKey crypto.Signer, publicKey ssh.PublicKey) (string, error) {
	fingerprint := ssh.FingerprintSHA256(publicKey)

	claims := JWTClaims{
		KeyFingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	var signingMethod jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		signingMethod = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		signingMethod = jwt.SigningMethodES256
	default:
		return "", fmt.Errorf("unsupported private key type")
	}

	token := jwt.NewWithClaims(signingMethod, claims)

	signingString, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to get signing string: %w", err)
	}

	hash := sha256.Sum256([]byte(signingString))
	signature, err := privateKey.Sign(nil, hash[:], crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	encodedSignature := base64.RawURLEncoding.EncodeToString(signature)

	return strings.Join([]string{signingString, encodedSignature}, "."), nil
}

// VerifyJWT verifies a JWT token against the authorized keys and returns the
// key fingerprint if valid.
func VerifyJWT(tokenString string, authConfig *AuthConfig) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			// These are acceptable.
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			return nil, fmt.Errorf("invalid claims type")
		}

		// Find the corresponding public key in the authorized keys.
		for _, authKey := range authConfig.Keys {
			if ssh.FingerprintSHA256(authKey.PublicKey) == claims.KeyFingerprint {
				cryptoKey, err := extractCryptoPublicKey(authKey.PublicKey)
				if err != nil {
					return nil, fmt.Errorf("failed to extract crypto key: %w", err)
				}
				return cryptoKey, nil
			}
		}

		return nil, fmt.Errorf("key not found in authorized keys")
	})
	if err != nil {
		return "", fmt.Errorf("failed to verify JWT: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims type")
	}

	return claims.KeyFingerprint, nil
}

// extractCryptoPublicKey extracts a crypto.PublicKey from an SSH public key.
func extractCryptoPublicKey(sshKey ssh.PublicKey) (crypto.PublicKey, error) {
	switch sshKey.Type() {
	case ssh.KeyAlgoRSA:
		key, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("SSH key does not implement CryptoPublicKey")
		}
		rsaKey, ok := key.CryptoPublicKey().(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to cast to RSA public key")
		}
		return rsaKey, nil
	case ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521:
		key, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("SSH key does not implement CryptoPublicKey")
		}
		ecdsaKey, ok := key.CryptoPublicKey().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to cast to ECDSA public key")
		}
		return ecdsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported SSH key type: %s", sshKey.Type())
	}
}
