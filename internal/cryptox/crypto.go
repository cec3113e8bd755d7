// Package cryptox implements authenticated encryption of sensitive scalar
// fields (email addresses, free-text answers). Every value is encrypted
// under its own key, derived from the operator master secret and a fresh
// random salt, so no two stored values share key material.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/aformulationoftruth/server/internal/common"
)

const (
	// SchemeCurrent is the per-value-salt scheme used on every write.
	SchemeCurrent = 2
	// SchemeLegacy is the retired fixed-salt scheme; values written under
	// it must stay readable.
	SchemeLegacy = 1

	kdfIterations = 100_000
	keySize       = 32
	saltSize      = 16
	nonceSize     = 12
	tagSize       = 16

	minMasterSecretLen = 16
)

// legacySalt is the fixed salt the v1 scheme derived every key from.
var legacySalt = []byte("formulation-of-truth-v1")

// EncryptedField is the storable form of one encrypted value. All four
// byte components plus the scheme version are required for decryption.
type EncryptedField struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
	Salt       []byte
	Version    int
}

// Service encrypts and decrypts fields under a master secret.
type Service struct {
	masterSecret []byte
}

// NewService validates the master secret and returns a Service.
func NewService(masterSecret []byte) (*Service, error) {
	if len(masterSecret) < minMasterSecretLen {
		return nil, fmt.Errorf("master secret too short: need at least %d bytes", minMasterSecretLen)
	}
	return &Service{masterSecret: masterSecret}, nil
}

func (s *Service) deriveKey(salt []byte) []byte {
	return pbkdf2.Key(s.masterSecret, salt, kdfIterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a freshly derived key. A new random salt
// and nonce are generated per call, so encrypting the same plaintext twice
// yields entirely different fields.
func (s *Service) Encrypt(plaintext string) (*EncryptedField, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt generation: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	aesgcm, err := s.newGCM(salt)
	if err != nil {
		return nil, err
	}

	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	// GCM appends the tag to the ciphertext; the storage schema keeps the
	// two apart so an absent tag is detectable as such.
	cut := len(sealed) - tagSize
	return &EncryptedField{
		Ciphertext: sealed[:cut],
		Nonce:      nonce,
		Tag:        sealed[cut:],
		Salt:       salt,
		Version:    SchemeCurrent,
	}, nil
}

// Decrypt opens the field, failing closed with common.ErrDecryption when
// the tag check fails, the scheme version is unknown, or any component is
// missing or truncated. It never returns partially decrypted data.
func (s *Service) Decrypt(f *EncryptedField) (string, error) {
	if f == nil {
		return "", common.ErrDecryption
	}
	if len(f.Nonce) != nonceSize || len(f.Tag) != tagSize || len(f.Ciphertext) == 0 {
		return "", common.ErrDecryption
	}

	var salt []byte
	switch f.Version {
	case SchemeCurrent:
		if len(f.Salt) != saltSize {
			return "", common.ErrDecryption
		}
		salt = f.Salt
	case SchemeLegacy:
		salt = legacySalt
	default:
		return "", common.ErrDecryption
	}

	aesgcm, err := s.newGCM(salt)
	if err != nil {
		return "", common.ErrDecryption
	}

	sealed := append(append([]byte{}, f.Ciphertext...), f.Tag...)
	plaintext, err := aesgcm.Open(nil, f.Nonce, sealed, nil)
	if err != nil {
		return "", common.ErrDecryption
	}
	return string(plaintext), nil
}

func (s *Service) newGCM(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.deriveKey(salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptLegacyForTest seals plaintext under the retired v1 scheme. It
// exists so migration paths and tests can produce legacy fixtures; the
// write path never uses it.
func (s *Service) EncryptLegacyForTest(plaintext string) (*EncryptedField, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	aesgcm, err := s.newGCM(legacySalt)
	if err != nil {
		return nil, err
	}
	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	cut := len(sealed) - tagSize
	return &EncryptedField{
		Ciphertext: sealed[:cut],
		Nonce:      nonce,
		Tag:        sealed[cut:],
		Version:    SchemeLegacy,
	}, nil
}

// HashLookup computes the deterministic digest used to index encrypted
// emails without storing them in clear. Lookups by email hash this value,
// never the ciphertext.
func HashLookup(normalized string) []byte {
	sum := sha256.Sum256([]byte(normalized))
	return sum[:]
}
