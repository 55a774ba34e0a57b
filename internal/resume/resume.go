// Package resume persists the session resumption record: enough identity
// to rebuild a suspended session after a process restart, sealed under a
// passphrase because it carries the room passcode.
package resume

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/atch2203/split-the-bill/internal/bill"
)

const (
	fileVersion    = 1
	argonTime      = 1
	argonMemory    = 64 * 1024
	argonThreads   = 4
	argonKeyLength = 32
	nonceSize      = chacha20poly1305.NonceSizeX
)

var (
	ErrNotFound    = errors.New("resume: no saved session")
	ErrInvalidPass = errors.New("resume: invalid passphrase")
	ErrCorruptFile = errors.New("resume: corrupted session file")
)

// Record is one saved session identity plus the last known document, so a
// restarted host can serve the same bill it was serving.
type Record struct {
	Role     string    `json:"role"`
	RoomID   string    `json:"roomId,omitempty"`
	Target   string    `json:"target,omitempty"`
	Passcode string    `json:"passcode,omitempty"`
	State    bill.Bill `json:"state"`
	SavedAt  time.Time `json:"savedAt"`
}

type sealedFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Store reads and writes the sealed record at a fixed path.
type Store struct {
	path string
}

// NewStore builds a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Save seals the record under the passphrase, replacing any prior record.
func (s *Store) Save(passphrase string, rec Record) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required: %w", ErrInvalidPass)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("resume: create directory: %w", err)
	}

	rec.SavedAt = rec.SavedAt.UTC()
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("resume: encode record: %w", err)
	}
	defer zeroBytes(plaintext)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("resume: generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("resume: init cipher: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("resume: generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	serialized, err := json.MarshalIndent(sealedFile{
		Version:    fileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("resume: encode file: %w", err)
	}

	return os.WriteFile(s.path, serialized, 0o600)
}

// Load opens the sealed record. A wrong passphrase reports ErrInvalidPass;
// a missing file reports ErrNotFound.
func (s *Store) Load(passphrase string) (Record, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("resume: read file: %w", err)
	}

	var file sealedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Record{}, fmt.Errorf("resume: decode file: %w", ErrCorruptFile)
	}
	if file.Version != fileVersion {
		return Record{}, fmt.Errorf("resume: unsupported version %d: %w", file.Version, ErrCorruptFile)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return Record{}, fmt.Errorf("resume: decode salt: %w", ErrCorruptFile)
	}
	nonce, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil {
		return Record{}, fmt.Errorf("resume: decode nonce: %w", ErrCorruptFile)
	}
	if len(nonce) != nonceSize {
		return Record{}, fmt.Errorf("resume: bad nonce size: %w", ErrCorruptFile)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Ciphertext)
	if err != nil {
		return Record{}, fmt.Errorf("resume: decode ciphertext: %w", ErrCorruptFile)
	}

	key := deriveKey(passphrase, salt)
	defer zeroBytes(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Record{}, fmt.Errorf("resume: init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Record{}, ErrInvalidPass
	}
	defer zeroBytes(plaintext)

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Record{}, fmt.Errorf("resume: decode record: %w", ErrCorruptFile)
	}
	return rec, nil
}

// Clear removes the saved record. Missing files are not an error: an
// explicit disconnect clears unconditionally.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("resume: remove file: %w", err)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLength)
}

func zeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
