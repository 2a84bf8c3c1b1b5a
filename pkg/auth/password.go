package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14 // cost for the bcrypt fallback algorithm
	TokenKeyLength = 32 // 256 bits

	maxArgon2KeyLength = 1024

	// Ceilings on cost parameters, both configured and read back from a
	// stored hash. A corrupted hash above them is malformed, not verified.
	maxArgon2MemoryKiB = 4 << 20 // 4 GiB
	maxArgon2Time      = 32
	maxBcryptCost      = 16
)

var (
	// ErrEmptyPassword is returned when hashing an empty password
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrMalformedCredential is returned when a stored hash cannot be parsed.
	// A mismatch is reported as (false, nil), never as this error.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrPasswordTooLong is returned by bcrypt for passwords over 72 bytes
	ErrPasswordTooLong = errors.New("password too long for bcrypt")
)

// Algorithm names a password hashing scheme
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Credential is an opaque, self-describing password hash. The algorithm tag
// and cost parameters travel inside Hash.
type Credential struct {
	Hash string
}

// Algorithm reads the tag embedded in the hash, or "" when unrecognised
func (c Credential) Algorithm() Algorithm {
	switch {
	case strings.HasPrefix(c.Hash, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(c.Hash, "$2a$"), strings.HasPrefix(c.Hash, "$2b$"), strings.HasPrefix(c.Hash, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}

// Argon2Params are the argon2id cost parameters
type Argon2Params struct {
	Time       uint32
	MemoryKiB  uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultArgon2Params follows the OWASP argon2id guidance
var DefaultArgon2Params = Argon2Params{
	Time:       1,
	MemoryKiB:  64 * 1024,
	Threads:    4,
	SaltLength: 16,
	KeyLength:  32,
}

// HashConfig selects the primary algorithm and its cost
type HashConfig struct {
	Algorithm  Algorithm
	Argon2     Argon2Params
	BcryptCost int
}

// DefaultHashConfig hashes with argon2id
func DefaultHashConfig() HashConfig {
	return HashConfig{
		Algorithm:  AlgorithmArgon2id,
		Argon2:     DefaultArgon2Params,
		BcryptCost: BcryptCost,
	}
}

// Hasher hashes new passwords with the configured algorithm and verifies
// any supported algorithm, so records written under an older configuration
// keep working.
type Hasher struct {
	cfg HashConfig
}

// NewHasher validates cfg and returns a Hasher
func NewHasher(cfg HashConfig) (*Hasher, error) {
	switch cfg.Algorithm {
	case AlgorithmArgon2id:
		p := cfg.Argon2
		if p.Time < 1 || p.Time > maxArgon2Time || p.Threads < 1 ||
			p.MemoryKiB < 8*uint32(max(p.Threads, 1)) || p.MemoryKiB > maxArgon2MemoryKiB {
			return nil, fmt.Errorf("invalid argon2id parameters: t=%d m=%d p=%d", p.Time, p.MemoryKiB, p.Threads)
		}
		if p.SaltLength < 8 || p.KeyLength < 16 || p.KeyLength > maxArgon2KeyLength {
			return nil, fmt.Errorf("invalid argon2id lengths: salt=%d key=%d", p.SaltLength, p.KeyLength)
		}
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > maxBcryptCost {
			return nil, fmt.Errorf("invalid bcrypt cost: %d", cfg.BcryptCost)
		}
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", cfg.Algorithm)
	}
	return &Hasher{cfg: cfg}, nil
}

// Algorithm returns the algorithm new hashes are produced with
func (h *Hasher) Algorithm() Algorithm {
	return h.cfg.Algorithm
}

// Hash produces a credential for password with a fresh random salt
func (h *Hasher) Hash(password string) (Credential, error) {
	if password == "" {
		return Credential{}, ErrEmptyPassword
	}

	pw := []byte(password)
	defer clear(pw)

	if h.cfg.Algorithm == AlgorithmBcrypt {
		hashed, err := bcrypt.GenerateFromPassword(pw, h.cfg.BcryptCost)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Credential{}, ErrPasswordTooLong
		}
		if err != nil {
			return Credential{}, fmt.Errorf("failed to hash password: %w", err)
		}
		return Credential{Hash: string(hashed)}, nil
	}

	p := h.cfg.Argon2
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(pw, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLength)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return Credential{Hash: encoded}, nil
}

// Verify checks password against cred. It returns (false, nil) on mismatch
// and ErrMalformedCredential when cred cannot be parsed or its cost
// parameters exceed the supported ceilings. Only the byte copy of password
// is cleared afterwards; the string itself cannot be.
func (h *Hasher) Verify(password string, cred Credential) (bool, error) {
	pw := []byte(password)
	defer clear(pw)

	switch cred.Algorithm() {
	case AlgorithmArgon2id:
		return verifyArgon2id(pw, cred.Hash)
	case AlgorithmBcrypt:
		return verifyBcrypt(pw, cred.Hash)
	default:
		return false, fmt.Errorf("%w: unrecognised algorithm", ErrMalformedCredential)
	}
}

// NeedsUpgrade reports whether cred was produced by another algorithm or
// with weaker parameters than the current configuration.
func (h *Hasher) NeedsUpgrade(cred Credential) bool {
	switch cred.Algorithm() {
	case AlgorithmArgon2id:
		if h.cfg.Algorithm != AlgorithmArgon2id {
			return true
		}
		params, _, key, err := parseArgon2id(cred.Hash)
		if err != nil {
			return false
		}
		want := h.cfg.Argon2
		return params.MemoryKiB < want.MemoryKiB ||
			params.Time < want.Time ||
			params.Threads < want.Threads ||
			uint32(len(key)) < want.KeyLength
	case AlgorithmBcrypt:
		if h.cfg.Algorithm != AlgorithmBcrypt {
			return true
		}
		cost, err := bcrypt.Cost([]byte(cred.Hash))
		if err != nil {
			return false
		}
		return cost < h.cfg.BcryptCost
	default:
		return false
	}
}

func verifyBcrypt(pw []byte, hash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if cost > maxBcryptCost {
		return false, fmt.Errorf("%w: bcrypt cost %d out of range", ErrMalformedCredential, cost)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), pw)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
}

func verifyArgon2id(pw []byte, hash string) (bool, error) {
	params, salt, expected, err := parseArgon2id(hash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(pw, salt, params.Time, params.MemoryKiB, params.Threads, uint32(len(expected)))
	defer clear(computed)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// parseArgon2id decodes $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func parseArgon2id(hash string) (Argon2Params, []byte, []byte, error) {
	malformed := func(reason string) (Argon2Params, []byte, []byte, error) {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: %s", ErrMalformedCredential, reason)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != string(AlgorithmArgon2id) {
		return malformed("invalid argon2id format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return malformed("unsupported argon2 version")
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return malformed("invalid argon2id parameters")
	}
	if memory == 0 || memory > maxArgon2MemoryKiB ||
		time == 0 || time > maxArgon2Time ||
		threads == 0 || threads > 255 {
		return malformed("argon2id parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return malformed("invalid salt encoding")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLength {
		return malformed("invalid key encoding")
	}

	params := Argon2Params{
		Time:       time,
		MemoryKiB:  memory,
		Threads:    uint8(threads),
		SaltLength: uint32(len(salt)),
		KeyLength:  uint32(len(key)),
	}
	return params, salt, key, nil
}

// GenerateTokenKey returns a random base64 key suitable as a JWT signing secret
func GenerateTokenKey() (string, error) {
	bytes := make([]byte, TokenKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}
