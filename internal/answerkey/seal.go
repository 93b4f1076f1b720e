package answerkey

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealAlgorithm = "argon2id+xchacha20poly1305"
	sealVersion   = 1
	saltSize      = 16
)

// ErrSealOpen is returned when a sealed key cannot be authenticated, which
// usually means the passphrase is wrong.
var ErrSealOpen = errors.New("cannot open sealed answer key")

// Sealed is the on-disk envelope of an encrypted answer key. Trainees get
// the envelope alongside the logs; graders hold the passphrase.
type Sealed struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// Seal encrypts the key under a passphrase.
func Seal(k *Key, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("seal passphrase is empty")
	}

	plaintext, err := k.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	envelope := Sealed{
		Version:    sealVersion,
		Algorithm:  sealAlgorithm,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}
	return json.MarshalIndent(envelope, "", "    ")
}

// Open decrypts a sealed key.
func Open(data []byte, passphrase string) (*Key, error) {
	var envelope Sealed
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if envelope.Version != sealVersion || envelope.Algorithm != sealAlgorithm {
		return nil, fmt.Errorf("%w: unsupported seal %s v%d", ErrMalformedKey, envelope.Algorithm, envelope.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt: %v", ErrMalformedKey, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid nonce: %v", ErrMalformedKey, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext: %v", ErrMalformedKey, err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce has %d bytes", ErrMalformedKey, len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealOpen
	}
	return Parse(plaintext)
}

// IsSealed reports whether data looks like a sealed envelope rather than a
// plain key record.
func IsSealed(data []byte) bool {
	var probe struct {
		Algorithm  string `json:"algorithm"`
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Algorithm == sealAlgorithm && probe.Ciphertext != ""
}
