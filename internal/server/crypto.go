package server

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// envelopeVersion tags the sealed format so it can evolve.
const envelopeVersion = 0x01

// Sealer encrypts history segments and snapshots before they leave the
// machine. The key is derived from the user's encryption secret with
// HKDF-SHA256, salted by the client ID so two clients sharing a secret
// still use distinct keys.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret and clientID.
func NewSealer(secret string, clientID uuid.UUID) (*Sealer, error) {
	kdf := hkdf.New(sha256.New, []byte(secret), clientID[:], []byte("history segment"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AEAD: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plain. The output is version byte || nonce || ciphertext.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, 0, 1+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, envelopeVersion)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plain, nil), nil
}

// Open decrypts a sealed payload produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < 1+ns {
		return nil, fmt.Errorf("sealed payload too short (%d bytes)", len(sealed))
	}
	if sealed[0] != envelopeVersion {
		return nil, fmt.Errorf("unknown envelope version %#x", sealed[0])
	}
	nonce, ciphertext := sealed[1:1+ns], sealed[1+ns:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plain, nil
}
