// Package password hashes and verifies user passwords with argon2id.
//
// Hashes are self-describing PHC strings, so the salt and cost parameters
// needed for verification travel with the hash:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKiB   uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// Upper bounds apply to stored hashes too, so a corrupted record cannot
	// make Verify allocate without limit.
	MaxMemoryKiB   uint32 = 1 << 22
	MaxTime        uint32 = 64
	MaxParallelism uint8  = 64
)

// ErrMalformedHash is returned by Verify when the stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig follows the OWASP argon2id baseline (19 MiB, 2 passes).
func DefaultConfig() Config {
	return Config{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type Argon2 struct {
	config Config
	rand   io.Reader
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.Memory < minMemoryKiB || cfg.Memory > MaxMemoryKiB {
		return nil, fmt.Errorf("argon2 memory must be between %d and %d KiB", minMemoryKiB, MaxMemoryKiB)
	}
	if cfg.Time < minTime || cfg.Time > MaxTime {
		return nil, fmt.Errorf("argon2 time must be between %d and %d", minTime, MaxTime)
	}
	if cfg.Parallelism < minParallelism || cfg.Parallelism > MaxParallelism {
		return nil, fmt.Errorf("argon2 parallelism must be between %d and %d", minParallelism, MaxParallelism)
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return nil, fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}
	return &Argon2{config: cfg, rand: rand.Reader}, nil
}

func (a *Argon2) Hash(plaintext string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encoded. A wrong password is
// (false, nil); only an unparseable hash is an error.
func (a *Argon2) Verify(encoded, plaintext string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, fmt.Errorf("%w: expected 5 segments", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return phc{}, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return phc{}, fmt.Errorf("%w: invalid version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var out phc
	if err := parseParams(parts[3], &out); err != nil {
		return phc{}, err
	}

	out.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return phc{}, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	out.key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(out.key) < int(minKeyLength) {
		return phc{}, fmt.Errorf("%w: invalid key", ErrMalformedHash)
	}
	return out, nil
}

func parseParams(part string, out *phc) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: invalid parameters", ErrMalformedHash)
	}

	var seenM, seenT, seenP bool
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: invalid parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKiB || uint32(n) > MaxMemoryKiB {
				return fmt.Errorf("%w: invalid memory", ErrMalformedHash)
			}
			out.memory, seenM = uint32(n), true
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTime || uint32(n) > MaxTime {
				return fmt.Errorf("%w: invalid time", ErrMalformedHash)
			}
			out.time, seenT = uint32(n), true
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism || uint8(n) > MaxParallelism {
				return fmt.Errorf("%w: invalid parallelism", ErrMalformedHash)
			}
			out.parallelism, seenP = uint8(n), true
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
	}
	if !seenM || !seenT || !seenP {
		return fmt.Errorf("%w: missing parameter", ErrMalformedHash)
	}
	return nil
}
