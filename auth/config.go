package auth

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Permission represents the type of access a key has.
type Permission string

const (
	PermissionRead      Permission = "r"
	PermissionReadWrite Permission = "w"
)

// AllTenants marks a key that is valid for every tenant.
const AllTenants int64 = -1

// AuthConfig holds the SSH public keys, their permissions and tenant scope.
type AuthConfig struct {
	Keys               []AuthorizedKey
	RequireAuthForRead bool // True if any key has read-only permission
}

// AuthorizedKey represents an SSH public key with its permission level and
// the tenant it is scoped to (AllTenants for an unscoped key).
type AuthorizedKey struct {
	Permission Permission
	Tenant     int64
	PublicKey  ssh.PublicKey
	Comment    string
}

// LoadAuthConfig loads authentication configuration from a file.
// File format: each line contains "r/w tenant-id-or-* ssh-keytype base64key comment"
func LoadAuthConfig(filepath string) (*AuthConfig, error) {
	if filepath == "" {
		return &AuthConfig{}, nil
	}

	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open auth file: %w", err)
	}
	defer file.Close()

	var config AuthConfig
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid format on line %d: expected at least 4 fields", lineNum)
		}

		// Parse permission.
		var perm Permission
		switch parts[0] {
		case "r":
			perm = PermissionRead
			config.RequireAuthForRead = true
		case "w":
			perm = PermissionReadWrite
		default:
			return nil, fmt.Errorf("invalid permission on line %d: expected 'r' or 'w', got '%s'", lineNum, parts[0])
		}

		// Parse tenant scope.
		tenant := AllTenants
		if parts[1] != "*" {
			tenant, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil || tenant < 0 {
				return nil, fmt.Errorf("invalid tenant on line %d: expected a tenant id or '*', got '%s'", lineNum, parts[1])
			}
		}

		// Parse SSH public key.
		keyLine := strings.Join(parts[2:], " ")
		pubKey, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(keyLine))
		if err != nil {
			return nil, fmt.Errorf("invalid SSH key on line %d: %w", lineNum, err)
		}

		config.Keys = append(config.Keys, AuthorizedKey{
			Permission: perm,
			Tenant:     tenant,
			PublicKey:  pubKey,
			Comment:    comment,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading auth file: %w", err)
	}

	return &config, nil
}

// CoversTenant reports whether the key grants access to the given tenant.
func (k AuthorizedKey) CoversTenant(tenantID int64) bool {
	return k.Tenant == AllTenants || k.Tenant == tenantID
}

// KeysFor returns the authorized entries matching a public key. A key can
// appear on multiple lines with different tenant scopes.
func (c *AuthConfig) KeysFor(pubKey ssh.PublicKey) (keys []AuthorizedKey) {
	for _, key := range c.Keys {
		if string(key.PublicKey.Marshal()) == string(pubKey.Marshal()) {
			keys = append(keys, key)
		}
	}
	return keys
}

// KeysByFingerprint returns the authorized entries whose public key has the
// given SHA256 fingerprint.
func (c *AuthConfig) KeysByFingerprint(fingerprint string) (keys []AuthorizedKey) {
	for _, key := range c.Keys {
		if ssh.FingerprintSHA256(key.PublicKey) == fingerprint {
			keys = append(keys, key)
		}
	}
	return keys
}

// HasWritePermission checks if a public key can write to the tenant.
func (c *AuthConfig) HasWritePermission(pubKey ssh.PublicKey, tenantID int64) bool {
	for _, key := range c.KeysFor(pubKey) {
		if key.Permission == PermissionReadWrite && key.CoversTenant(tenantID) {
			return true
		}
	}
	return false
}

// HasReadPermission checks if a public key can read from the tenant.
func (c *AuthConfig) HasReadPermission(pubKey ssh.PublicKey, tenantID int64) bool {
	if !c.RequireAuthForRead {
		return true
	}
	for _, key := range c.KeysFor(pubKey) {
		if key.CoversTenant(tenantID) {
			return true
		}
	}
	return false
}
