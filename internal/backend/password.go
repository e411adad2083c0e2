package backend

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Tenant credentials are stored as Argon2id PHC strings; the parameters
// follow the OWASP 2025 recommendation.
const (
	credentialTime    = 3         // iterations
	credentialMemory  = 64 * 1024 // 64 MiB
	credentialThreads = 1         // parallelism
	credentialKeyLen  = 32        // derived key length
	credentialSaltLen = 16        // salt length
)

// HashPassword derives a credential hash for a tenant password, returned
// in PHC string form: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, credentialSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating credential salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, credentialTime, credentialMemory, credentialThreads, credentialKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		credentialMemory, credentialTime, credentialThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a login attempt against a tenant's stored credential
// hash. The stored parameters are used for the comparison so older hashes
// keep verifying after the defaults change.
func VerifyPassword(password, storedHash string) (bool, error) {
	salt, key, params, err := parseCredentialHash(storedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key)))

	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

type credentialParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// parseCredentialHash splits a stored tenant credential into its salt,
// derived key and Argon2id parameters.
func parseCredentialHash(stored string) (salt, key []byte, params credentialParams, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("credential hash is not in PHC form")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("credential hash uses unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing credential hash version: %w", err)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing credential hash parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding credential salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding credential key: %w", err)
	}

	return salt, key, params, nil
}
