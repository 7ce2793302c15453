package session

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealedExt = ".sealed"

// FileSecureStore is the secure slot backing: values are sealed with
// secretbox under a per-slot key derived from the device root key, then
// written to disk with owner-only permissions. It stands in for the
// platform keychain on targets that lack one.
type FileSecureStore struct {
	dir     string
	rootKey []byte
}

// NewFileSecureStore creates the store directory and validates the root key.
func NewFileSecureStore(dir string, rootKey []byte) (*FileSecureStore, error) {
	if dir == "" {
		return nil, goerrors.New("secure store directory is required", goerrors.CategoryBadInput)
	}
	if len(rootKey) == 0 {
		return nil, goerrors.New("secure store root key is required", goerrors.CategoryBadInput)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create secure store directory")
	}

	key := make([]byte, len(rootKey))
	copy(key, rootKey)

	return &FileSecureStore{dir: dir, rootKey: key}, nil
}

// Set seals value and writes it to the slot file.
func (s *FileSecureStore) Set(key, value string) error {
	sealKey, err := s.deriveSlotKey(key)
	if err != nil {
		return err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "generate nonce")
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, sealKey)

	if err := os.WriteFile(s.slotPath(key), sealed, 0o600); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "write sealed slot")
	}

	return nil
}

// Get opens the slot file. A missing slot is reported as absent, never as an
// error; a corrupt or tampered slot is an error.
func (s *FileSecureStore) Get(key string) (string, bool, error) {
	sealed, err := os.ReadFile(s.slotPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "read sealed slot")
	}

	if len(sealed) < 24 {
		return "", false, goerrors.New("sealed slot is truncated", goerrors.CategoryInternal)
	}

	sealKey, err := s.deriveSlotKey(key)
	if err != nil {
		return "", false, err
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	value, ok := secretbox.Open(nil, sealed[24:], &nonce, sealKey)
	if !ok {
		return "", false, goerrors.New("sealed slot failed authentication", goerrors.CategoryInternal)
	}

	return string(value), true, nil
}

// Delete removes the slot file; deleting an absent slot is a no-op.
func (s *FileSecureStore) Delete(key string) error {
	if err := os.Remove(s.slotPath(key)); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "remove sealed slot")
	}
	return nil
}

func (s *FileSecureStore) slotPath(key string) string {
	return filepath.Join(s.dir, key+sealedExt)
}

func (s *FileSecureStore) deriveSlotKey(key string) (*[32]byte, error) {
	reader := hkdf.New(sha256.New, s.rootKey, nil, []byte("slot:"+key))

	derived := new([32]byte)
	if _, err := io.ReadFull(reader, derived[:]); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "derive slot key")
	}

	return derived, nil
}
