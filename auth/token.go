package auth

import (
	"crypto"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/ssh"
)

// TokenFromSSHKeys discovers local SSH keys and creates a JWT signed with
// the first usable one. The resulting token is what clients send as the
// Bearer credential.
func TokenFromSSHKeys(log *slog.Logger) (string, error) {
	keys, err := DiscoverSSHKeys(log)
	if err != nil {
		return "", fmt.Errorf("failed to discover SSH keys: %w", err)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no SSH keys found")
	}

	for _, keyInfo := range keys {
		if keyInfo.Signer == nil {
			log.Debug("skipping key without signer", slog.String("fingerprint", keyInfo.Fingerprint))
			continue
		}

		pubKey := keyInfo.Signer.PublicKey()
		if !isSupportedKeyType(pubKey) {
			log.Debug("skipping unsupported key type", slog.String("type", pubKey.Type()), slog.String("fingerprint", keyInfo.Fingerprint))
			continue
		}

		token, err := CreateJWT(&cryptoSignerWrapper{sshSigner: keyInfo.Signer}, pubKey)
		if err != nil {
			log.Debug("failed to create JWT", slog.String("error", err.Error()), slog.String("fingerprint", keyInfo.Fingerprint))
			continue
		}

		log.Info("using SSH key for authentication", slog.String("fingerprint", keyInfo.Fingerprint), slog.String("source", keyInfo.Source))
		return token, nil
	}

	return "", fmt.Errorf("no usable SSH keys found for JWT signing")
}

// isSupportedKeyType checks if the SSH key type is supported for JWT signing.
func isSupportedKeyType(pubKey ssh.PublicKey) bool {
	switch pubKey.Type() {
	case ssh.KeyAlgoRSA, ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521:
		return true
	default:
		return false
	}
}

// cryptoSignerWrapper adapts an SSH signer to crypto.Signer for JWT signing.
type cryptoSignerWrapper struct {
	sshSigner ssh.Signer
}

func (w *cryptoSignerWrapper) Public() crypto.PublicKey {
	cryptoPubKey, err := extractCryptoPublicKey(w.sshSigner.PublicKey())
	if err != nil {
		// The key type was validated before the wrapper was built.
		panic(fmt.Sprintf("failed to extract crypto public key: %v", err))
	}
	return cryptoPubKey
}

func (w *cryptoSignerWrapper) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	signature, err := w.sshSigner.Sign(rand, digest)
	if err != nil {
		return nil, err
	}
	return signature.Blob, nil
}
