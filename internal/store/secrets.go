package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/anatolykoptev/go-kit/env"
)

// SecretAPIKeys names the secret holding the comma-delimited YouTube API keys.
const SecretAPIKeys = "youtube_api_keys"

// Secrets is an opaque credential store.
type Secrets interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
}

// EnvSecrets reads secrets from environment variables named after the
// upper-cased secret name (youtube_api_keys -> YOUTUBE_API_KEYS).
type EnvSecrets struct{}

func (EnvSecrets) Get(_ context.Context, name string) (string, bool, error) {
	v := env.Str(strings.ToUpper(name), "")
	return v, v != "", nil
}

func (EnvSecrets) Set(context.Context, string, string) error {
	return ErrReadOnly
}

// AgeFileSecrets keeps all secrets in one JSON object encrypted with an age
// scrypt passphrase. Every Set rewrites the file atomically.
type AgeFileSecrets struct {
	path       string
	passphrase string

	// WorkFactor overrides the scrypt work factor (log2 N) used on write.
	// Zero keeps the age default.
	WorkFactor int

	mu sync.Mutex
}

func NewAgeFileSecrets(path, passphrase string) (*AgeFileSecrets, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: passphrase is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("secrets: mkdir: %w", err)
	}
	return &AgeFileSecrets{path: path, passphrase: passphrase}, nil
}

func (s *AgeFileSecrets) Get(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return "", false, err
	}
	v, ok := all[name]
	return v, ok, nil
}

func (s *AgeFileSecrets) Set(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[name] = value
	return s.writeAll(all)
}

func (s *AgeFileSecrets) readAll() (map[string]string, error) {
	out := make(map[string]string)
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: open: %w", err)
	}
	defer f.Close()

	identity, err := age.NewScryptIdentity(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("secrets: identity: %w", err)
	}
	r, err := age.Decrypt(f, identity)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("secrets: read: %w", err)
	}
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode: %w", err)
	}
	return out, nil
}

func (s *AgeFileSecrets) writeAll(all map[string]string) error {
	plaintext, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("secrets: encode: %w", err)
	}
	recipient, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return fmt.Errorf("secrets: recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("secrets: creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("secrets: writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("secrets: finalizing encryption: %w", err)
	}
	if err := WriteFileAtomic(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	return nil
}
