// Package password hashes and verifies user passwords with bcrypt or argon2id.
package password

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgoBcrypt   = "bcrypt"
	AlgoArgon2id = "argon2id"
)

const argon2idPrefix = "$argon2id$"

// Argon2Params are the argon2id cost parameters encoded into every hash.
type Argon2Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follow the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Verify compares password with storedHash in time independent of where they
// differ. A mismatch returns false with a nil error. A hash that cannot be
// interpreted returns common.ErrCorruptCredentialRecord.
func Verify(password, storedHash string) (bool, error) {
	switch {
	case isBcrypt(storedHash):
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", common.ErrCorruptCredentialRecord, err)
		}

	case strings.HasPrefix(storedHash, argon2idPrefix):
		p, salt, key, err := decodeArgon2id(storedHash)
		if err != nil {
			return false, fmt.Errorf("%w: %v", common.ErrCorruptCredentialRecord, err)
		}
		derived := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
		return subtle.ConstantTimeCompare(derived, key) == 1, nil

	default:
		return false, common.ErrCorruptCredentialRecord
	}
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}

// Hasher produces new password hashes. It also keeps a dummy hash, generated
// once, that callers verify against when no user record exists so both paths
// cost the same.
type Hasher struct {
	algo       string
	bcryptCost int
	argon      Argon2Params
	dummy      string
}

// NewHasher builds a Hasher for algo. A bcryptCost of 0 means bcrypt.DefaultCost.
func NewHasher(algo string, bcryptCost int, argon Argon2Params) (*Hasher, error) {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}

	h := &Hasher{algo: algo, bcryptCost: bcryptCost, argon: argon}

	switch algo {
	case AlgoBcrypt:
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
	case AlgoArgon2id:
		if argon.Memory == 0 || argon.Time == 0 || argon.Threads == 0 || argon.KeyLen == 0 || argon.SaltLen == 0 {
			return nil, errors.New("argon2id parameters must be positive")
		}
	default:
		return nil, fmt.Errorf("unknown password algorithm %q", algo)
	}

	seed, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummy, err := h.Hash(seed)
	if err != nil {
		return nil, err
	}
	h.dummy = dummy

	return h, nil
}

// Hash returns an encoded hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if h.algo == AlgoArgon2id {
		return h.hashArgon2id(password)
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DummyHash returns the hash computed at construction.
func (h *Hasher) DummyHash() string {
	return h.dummy
}

// NeedsRehash reports whether hash was produced with another algorithm or
// other cost parameters than h uses. Unparsable hashes also need a rehash.
func (h *Hasher) NeedsRehash(hash string) bool {
	switch h.algo {
	case AlgoBcrypt:
		if !isBcrypt(hash) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(hash))
		return err != nil || cost != h.bcryptCost
	case AlgoArgon2id:
		if !strings.HasPrefix(hash, argon2idPrefix) {
			return true
		}
		p, _, _, err := decodeArgon2id(hash)
		return err != nil || p != h.argon
	}
	return true
}

func (h *Hasher) hashArgon2id(password string) (string, error) {
	salt := common.GenerateRandByteArray(int(h.argon.SaltLen))
	key := argon2.IDKey([]byte(password), salt, h.argon.Time, h.argon.Memory, h.argon.Threads, h.argon.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.argon.Memory, h.argon.Time, h.argon.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// decodeArgon2id parses "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, errors.New("argon2id: wrong number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("argon2id: version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("argon2id: unsupported version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("argon2id: params: %w", err)
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, errors.New("argon2id: zero parameter")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("argon2id: salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("argon2id: bad key encoding")
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
