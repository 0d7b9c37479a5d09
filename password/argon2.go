package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrInvalidHash is returned when a stored hash is not a supported argon2id PHC string.
	ErrInvalidHash = errors.New("password: invalid argon2id hash")
	// ErrTooShort is returned by Hash for passwords below Config.MinLength bytes.
	ErrTooShort = errors.New("password: too short")
	// ErrTooLong is returned by Hash and Verify for passwords above the length cap.
	ErrTooLong = errors.New("password: too long")
)

// DefaultMaxLength caps plaintext length when Config.MaxLength is zero.
const DefaultMaxLength = 1024

// Config holds the Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum plaintext length accepted by Hash, in bytes. Zero disables the check.
	MinLength int
	// MaxLength bounds the plaintext accepted by Hash and Verify. Zero means DefaultMaxLength.
	MaxLength int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Validate checks the parameters against the package minimums.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MinLength < 0:
		return errors.New("password min length must be >= 0")
	case c.MaxLength < 0:
		return errors.New("password max length must be >= 0")
	case c.MaxLength > 0 && c.MaxLength < c.MinLength:
		return errors.New("password max length must be >= min length")
	}
	return nil
}

// Argon2 hashes and verifies credentials. It is safe for concurrent use.
type Argon2 struct {
	cfg  Config
	rand io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return &Argon2{cfg: cfg, rand: rand.Reader}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.cfg.MinLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrTooShort, a.cfg.MinLength)
	}
	if len(password) > a.cfg.MaxLength {
		return "", ErrTooLong
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)
	return phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
		key:         key,
	}.String(), nil
}

// Verify reports whether password matches encoded. A malformed encoding is an error, a
// mismatch is not.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.cfg.MaxLength {
		return false, ErrTooLong
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters than the
// hasher's, so the caller can re-hash after the next successful login.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return a.cfg.Memory > p.memory ||
		a.cfg.Time > p.time ||
		a.cfg.Parallelism > p.parallelism ||
		a.cfg.KeyLength != uint32(len(p.key)), nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func parsePHC(encoded string) (phc, error) {
	var p phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, fmt.Errorf("%w: version %q", ErrInvalidHash, parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return p, fmt.Errorf("%w: params %q", ErrInvalidHash, parts[3])
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return p, fmt.Errorf("%w: params below minimum", ErrInvalidHash)
	}

	var err error
	if p.salt, err = decodeSegment(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	if p.key, err = decodeSegment(parts[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	return p, nil
}

// decodeSegment accepts both unpadded and padded base64, since hashes produced by other
// tools use either.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
