// Package crypto implements the Encryption Service (C2): authenticated
// encryption of UTF-8 plaintext strings, with key-version tagging so key
// rotation never loses the ability to decrypt older rows.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// Recognized environment variable names for master key material. The first
// one set wins.
const (
	EnvMasterKey         = "OPENACT_MASTER_KEY"
	EnvMasterKeyAlternate = "OPENACT_ENCRYPTION_KEY"
)

// noEncryptionKeyVersion is the sentinel key_version written when the
// service runs without a configured master key ("no-encryption" local dev
// mode per spec.md §4.2); plaintext is only base64-encoded.
const noEncryptionKeyVersion = 0

// Service provides Encrypt/Decrypt over one or more key versions.
type Service struct {
	// keys maps key_version -> XChaCha20-Poly1305 AEAD instance.
	keys map[int]cipher.AEAD
	// current is the key_version new Encrypt calls use.
	current int
	// noEncryption is true when no master key was configured.
	noEncryption bool
}

// New constructs a Service from process environment variables. Absence of
// both EnvMasterKey and EnvMasterKeyAlternate puts the service into
// no-encryption mode, appropriate only for local development; production
// deployments must set one of the two.
func New() (*Service, error) {
	key := os.Getenv(EnvMasterKey)
	if key == "" {
		key = os.Getenv(EnvMasterKeyAlternate)
	}
	if key == "" {
		return &Service{noEncryption: true, current: noEncryptionKeyVersion}, nil
	}
	return NewWithKeys(map[int]string{1: key})
}

// NewWithKeys builds a Service from explicit key-version -> key-material
// pairs (raw key bytes, any length, passed through HKDF-free direct
// derivation via a 32-byte truncation/pad — callers in production should
// supply exactly 32 bytes). The highest version number is treated as
// "current" for new Encrypt calls; all versions remain available for
// Decrypt, so old records are never orphaned by key rotation.
func NewWithKeys(keys map[int]string) (*Service, error) {
	if len(keys) == 0 {
		return nil, apperrors.New(apperrors.KindInternal, "at least one key version required")
	}
	s := &Service{keys: make(map[int]cipher.AEAD)}
	maxV := -1
	for v, material := range keys {
		aead, err := newAEAD(material)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "invalid master key material")
		}
		s.keys[v] = aead
		if v > maxV {
			maxV = v
		}
	}
	s.current = maxV
	return s, nil
}

func newAEAD(material string) (cipher.AEAD, error) {
	key := deriveKey(material)
	return chacha20poly1305.NewX(key)
}

// deriveKey normalizes arbitrary-length key material into exactly
// chacha20poly1305.KeySize bytes by truncation or zero-padding. Operators
// are expected to supply high-entropy material (e.g. a base64 32-byte
// secret); this is not a password KDF.
func deriveKey(material string) []byte {
	raw := []byte(material)
	key := make([]byte, chacha20poly1305.KeySize)
	copy(key, raw)
	return key
}

// Encrypted is the tuple stored alongside a sensitive field.
type Encrypted struct {
	Ciphertext []byte
	Nonce      []byte
	KeyVersion int
}

// Encrypt authenticates-and-encrypts plaintext under the service's current
// key version, generating a fresh random nonce.
func (s *Service) Encrypt(plaintext string) (Encrypted, error) {
	if s.noEncryption {
		return Encrypted{
			Ciphertext: []byte(base64.StdEncoding.EncodeToString([]byte(plaintext))),
			Nonce:      nil,
			KeyVersion: noEncryptionKeyVersion,
		}, nil
	}
	aead := s.keys[s.current]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, apperrors.Wrap(apperrors.KindInternal, err, "failed to generate nonce")
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Encrypted{Ciphertext: ct, Nonce: nonce, KeyVersion: s.current}, nil
}

// Decrypt reverses Encrypt. AEAD authentication failure, or an unknown
// key_version, surfaces a structured error — it never returns corrupted
// plaintext.
func (s *Service) Decrypt(e Encrypted) (string, error) {
	if e.KeyVersion == noEncryptionKeyVersion {
		pt, err := base64.StdEncoding.DecodeString(string(e.Ciphertext))
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindInternal, err, "bad no-encryption ciphertext")
		}
		return string(pt), nil
	}
	aead, ok := s.keys[e.KeyVersion]
	if !ok {
		return "", apperrors.New(apperrors.KindInternal, "unknown key version").
			WithData(map[string]any{"reason": "UnknownKeyVersion", "key_version": e.KeyVersion})
	}
	pt, err := aead.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "authentication failed").
			WithData(map[string]any{"reason": "BadCiphertext"})
	}
	return string(pt), nil
}

// CurrentKeyVersion reports the key_version new Encrypt calls will use.
func (s *Service) CurrentKeyVersion() int { return s.current }

// NoEncryption reports whether the service is running without a configured
// master key (local-development mode).
func (s *Service) NoEncryption() bool { return s.noEncryption }

// Rewrap decrypts e under the key version it records and re-encrypts the
// plaintext with the service's current key. The credential store's
// key-version repair sweep does not call it; it re-encrypts rows through
// Encrypt when it rewrites them.
func (s *Service) Rewrap(e Encrypted) (Encrypted, error) {
	plaintext, err := s.Decrypt(e)
	if err != nil {
		return Encrypted{}, err
	}
	return s.Encrypt(plaintext)
}
