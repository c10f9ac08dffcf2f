package apikey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/authstate/internal"
)

const (
	// DefaultPrefix marks credentials issued by this registry.
	DefaultPrefix = "sk_harbor_"
	// DefaultRandomBytes is the entropy of the random suffix.
	DefaultRandomBytes = internal.TokenBytes
	// minSuffixLength is the shortest suffix ValidateFormat accepts.
	minSuffixLength = 20
	hmacKeyContext  = "_api_key_hmac"
)

var (
	// ErrSecretRequired is returned when no server secret is configured and
	// an ephemeral one is not allowed.
	ErrSecretRequired = errors.New("api key secret required")
	// ErrInvalidConfig is returned for a bad prefix or entropy size.
	ErrInvalidConfig = errors.New("invalid api key config")
)

// Config controls credential shape and hashing.
type Config struct {
	// Secret keys the HMAC. Digests are stable across restarts only while
	// Secret is unchanged.
	Secret string
	// Prefix defaults to DefaultPrefix.
	Prefix string
	// RandomBytes defaults to DefaultRandomBytes and must be >= 16.
	RandomBytes int
	// AllowEphemeralSecret generates a random secret when Secret is empty.
	// Keys issued under it stop verifying after a restart.
	AllowEphemeralSecret bool
}

// Registry issues and checks credentials. It holds no per-key state and is
// safe for concurrent use.
type Registry struct {
	prefix      string
	randomBytes int
	hmacKey     []byte
}

// NewRegistry derives the HMAC key from cfg.Secret.
func NewRegistry(cfg Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RandomBytes == 0 {
		cfg.RandomBytes = DefaultRandomBytes
	}
	if cfg.RandomBytes < 16 {
		return nil, fmt.Errorf("%w: RandomBytes must be >= 16", ErrInvalidConfig)
	}
	if !isURLSafe(cfg.Prefix) {
		return nil, fmt.Errorf("%w: Prefix must use the base64url alphabet", ErrInvalidConfig)
	}

	secret := cfg.Secret
	if secret == "" {
		if !cfg.AllowEphemeralSecret {
			return nil, ErrSecretRequired
		}
		generated, err := internal.NewToken(internal.TokenBytes)
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("api key secret not configured; using an ephemeral secret, issued keys will not survive a restart")
	}

	derived := sha256.Sum256([]byte(secret + hmacKeyContext))
	return &Registry{
		prefix:      cfg.Prefix,
		randomBytes: cfg.RandomBytes,
		hmacKey:     derived[:],
	}, nil
}

// Prefix returns the credential prefix.
func (r *Registry) Prefix() string { return r.prefix }

// Generate returns a new plaintext credential and its digest. The
// plaintext must be shown to the owner once and then discarded.
func (r *Registry) Generate() (plain string, hash string, err error) {
	suffix, err := internal.NewToken(r.randomBytes)
	if err != nil {
		return "", "", err
	}
	plain = r.prefix + suffix
	return plain, r.Hash(plain), nil
}

// Hash returns hex(HMAC-SHA256(key, plain)).
func (r *Registry) Hash(plain string) string {
	mac := hmac.New(sha256.New, r.hmacKey)
	mac.Write([]byte(plain))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateFormat is a cheap syntactic check run before any lookup: correct
// prefix, suffix of at least 20 characters, base64url alphabet only.
func (r *Registry) ValidateFormat(candidate string) bool {
	if !strings.HasPrefix(candidate, r.prefix) {
		return false
	}
	if len(candidate)-len(r.prefix) < minSuffixLength {
		return false
	}
	return isURLSafe(candidate)
}

// Verify reports whether plain hashes to storedHash, comparing in constant
// time.
func (r *Registry) Verify(plain, storedHash string) bool {
	if plain == "" || storedHash == "" {
		return false
	}
	return hmac.Equal([]byte(r.Hash(plain)), []byte(storedHash))
}

func isURLSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
