// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/Azure/batch-explorer-auth/apps/logger"
	"github.com/gofrs/flock"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	permissionDirectoryOwnerOnly = 0700
	permissionFileOwnerOnly      = 0600

	// sealedMagic starts every encrypted file: magic | salt | nonce | ciphertext.
	sealedMagic = "BEA1"
	saltSize    = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// File is a Storage keeping one file per key in a directory. Access to a key is serialized
// across processes with a lock file next to it.
type File struct {
	root       string
	ext        string
	passphrase []byte
	log        *logger.Logger
}

// FileOption is an optional argument to NewFile.
type FileOption func(f *File)

// WithPassphrase encrypts values at rest with a key derived from passphrase.
func WithPassphrase(passphrase string) FileOption {
	return func(f *File) {
		f.passphrase = []byte(passphrase)
	}
}

// WithFileLogger sets the logger used to report lock release failures.
func WithFileLogger(l *logger.Logger) FileOption {
	return func(f *File) {
		f.log = l
	}
}

// NewFile creates a File storing values under root, creating root if needed.
func NewFile(root string, options ...FileOption) (*File, error) {
	if root == "" {
		return nil, errors.New("storage root must not be empty")
	}
	if err := os.MkdirAll(root, permissionDirectoryOwnerOnly); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", root, err)
	}
	f := &File{root: root, ext: "json", log: logger.New(nil)}
	for _, o := range options {
		o(f)
	}
	if len(f.passphrase) > 0 {
		f.ext = "bin"
	}
	return f, nil
}

func (f *File) GetItem(ctx context.Context, key string) (string, bool, error) {
	var val string
	var ok bool
	err := f.withLock(ctx, key, "get", func(path string) error {
		contents, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(f.passphrase) > 0 {
			contents, err = f.open(contents)
			if err != nil {
				return err
			}
		}
		val, ok = string(contents), true
		return nil
	})
	return val, ok, err
}

func (f *File) SetItem(ctx context.Context, key, value string) error {
	return f.withLock(ctx, key, "set", func(path string) error {
		contents := []byte(value)
		if len(f.passphrase) > 0 {
			var err error
			contents, err = f.seal(contents)
			if err != nil {
				return err
			}
		}
		// Write then rename so a reader without the lock never sees a partial file.
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, contents, permissionFileOwnerOnly); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	})
}

func (f *File) RemoveItem(ctx context.Context, key string) error {
	return f.withLock(ctx, key, "remove", func(path string) error {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
}

func (f *File) withLock(ctx context.Context, key, op string, fn func(path string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey.MatchString(key) {
		return &customErrors.StorageError{Key: key, Op: op, Err: errors.New("key may only contain letters, digits, '.', '_' and '-'")}
	}

	lockPath := f.pathForLock(key)
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return &customErrors.StorageError{Key: key, Op: op, Err: fmt.Errorf("locking file %s: %w", lockPath, err)}
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			f.log.Log(ctx, logger.Warn, "failed to release file lock", logger.Field("path", lockPath), logger.Field("error", err))
		}
	}()

	if err := fn(f.pathForItem(key)); err != nil {
		return &customErrors.StorageError{Key: key, Op: op, Err: err}
	}
	return nil
}

func (f *File) pathForItem(key string) string {
	return filepath.Join(f.root, fmt.Sprintf("%s.%s", key, f.ext))
}

func (f *File) pathForLock(key string) string {
	return filepath.Join(f.root, fmt.Sprintf("%s.%s.lock", key, f.ext))
}

func (f *File) deriveKey(salt []byte) []byte {
	return argon2.IDKey(f.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func (f *File) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedMagic)+saltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, []byte(sealedMagic)), nil
}

func (f *File) open(sealed []byte) ([]byte, error) {
	header := len(sealedMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(sealed) < header || string(sealed[:len(sealedMagic)]) != sealedMagic {
		return nil, errors.New("stored value is not encrypted with a known format")
	}
	salt := sealed[len(sealedMagic) : len(sealedMagic)+saltSize]
	nonce := sealed[len(sealedMagic)+saltSize : header]

	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed[header:], []byte(sealedMagic))
	if err != nil {
		return nil, fmt.Errorf("decrypting stored value: %w", err)
	}
	return plain, nil
}
