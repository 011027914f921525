package auth

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// KeyInfo describes one discovered SSH key.
type KeyInfo struct {
	Source      string // "agent" or "file"
	Fingerprint string // SHA256
	Comment     string
	Signer      ssh.Signer // Nil when no usable private key is available.
}

// DiscoverSSHKeys lists SSH keys from ssh-agent (via SSH_AUTH_SOCK) and from
// ~/.ssh/*.pub files. Keys without a usable signer are still listed so they
// can be reported to the user.
func DiscoverSSHKeys(log *slog.Logger) (out []KeyInfo, err error) {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		keys, err := listAgentKeys(sock)
		if err != nil {
			log.Warn("failed to list SSH agent keys", slog.Any("error", err))
		}
		out = append(out, keys...)
	}

	keys, err := listFileKeys()
	if err != nil {
		log.Warn("failed to scan for key files", slog.Any("error", err))
	}
	out = append(out, keys...)

	return out, nil
}

// listAgentKeys lists SSH keys held by ssh-agent.
func listAgentKeys(sock string) (out []KeyInfo, err error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		pub, err := ssh.ParsePublicKey(k.Marshal())
		if err != nil {
			continue
		}
		out = append(out, KeyInfo{
			Source:      "agent",
			Fingerprint: ssh.FingerprintSHA256(pub),
			Comment:     strings.TrimSpace(k.Comment),
			Signer:      &agentSigner{socket: sock, publicKey: pub},
		})
	}
	return out, nil
}

// listFileKeys lists SSH keys from ~/.ssh/*.pub files.
func listFileKeys() ([]KeyInfo, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	matches, _ := filepath.Glob(filepath.Join(home, ".ssh", "*.pub"))

	var out []KeyInfo
	for _, p := range matches {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			continue
		}
		if comment == "" {
			if fields := bytes.Fields(data); len(fields) >= 3 {
				comment = string(bytes.Join(fields[2:], []byte(" ")))
			}
		}

		// The private key may be absent or encrypted; the key is still
		// listed, just not usable for signing.
		signer, err := loadPrivateKey(strings.TrimSuffix(p, ".pub"))
		if err != nil {
			signer = nil
		}

		out = append(out, KeyInfo{
			Source:      "file",
			Fingerprint: ssh.FingerprintSHA256(pub),
			Comment:     strings.TrimSpace(comment),
			Signer:      signer,
		})
	}
	return out, nil
}

// loadPrivateKey attempts to load a private key from disk.
func loadPrivateKey(path string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("encrypted keys not supported: %w", err)
	}
	return signer, nil
}

// agentSigner implements ssh.Signer using ssh-agent.
type agentSigner struct {
	socket    string
	publicKey ssh.PublicKey
}

func (s *agentSigner) PublicKey() ssh.PublicKey {
	return s.publicKey
}

func (s *agentSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	// Reconnect to the agent for each signature to avoid connection
	// lifecycle issues.
	conn, err := net.Dial("unix", s.socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
	}
	defer conn.Close()

	return agent.NewClient(conn).Sign(s.publicKey, data)
}
