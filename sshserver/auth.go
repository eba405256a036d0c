package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/ssh"
)

// ErrInvalidTOTP indicates a rejected verification code.
var ErrInvalidTOTP = errors.New("invalid verification code")

// Authenticator checks login keys against an authorized_keys file and
// optionally a TOTP secret.
type Authenticator struct {
	path   string
	secret string

	mu      sync.Mutex
	modTime time.Time
	keys    [][]byte
}

// NewAuthenticator loads the authorized_keys file at path.
func NewAuthenticator(path, totpSecret string) (*Authenticator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("authorized keys path is required")
	}
	a := &Authenticator{path: path, secret: strings.TrimSpace(totpSecret)}
	if err := a.reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// RequiresTOTP reports whether a second factor is configured.
func (a *Authenticator) RequiresTOTP() bool {
	return a != nil && a.secret != ""
}

// HasKey reports whether key is listed in the authorized_keys file. The file
// is re-read when it changes on disk.
func (a *Authenticator) HasKey(key ssh.PublicKey) (bool, error) {
	if key == nil {
		return false, nil
	}
	if err := a.reload(); err != nil {
		return false, err
	}
	wire := key.Marshal()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, known := range a.keys {
		if bytes.Equal(known, wire) {
			return true, nil
		}
	}
	return false, nil
}

// ValidateTOTP checks a verification code against the configured secret.
func (a *Authenticator) ValidateTOTP(code string) error {
	if !a.RequiresTOTP() {
		return nil
	}
	if !totp.Validate(strings.TrimSpace(code), a.secret) {
		return ErrInvalidTOTP
	}
	return nil
}

func (a *Authenticator) reload() error {
	info, err := os.Stat(a.path)
	if err != nil {
		return fmt.Errorf("stat authorized keys: %w", err)
	}
	a.mu.Lock()
	unchanged := a.keys != nil && info.ModTime().Equal(a.modTime)
	a.mu.Unlock()
	if unchanged {
		return nil
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read authorized keys: %w", err)
	}
	keys, err := parseAuthorizedKeys(data)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.keys = keys
	a.modTime = info.ModTime()
	a.mu.Unlock()
	return nil
}

func parseAuthorizedKeys(data []byte) ([][]byte, error) {
	keys := make([][]byte, 0, 4)
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("parse authorized keys line %d: %w", n+1, err)
		}
		keys = append(keys, key.Marshal())
	}
	return keys, nil
}
