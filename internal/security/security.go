// Package security provides optional symmetric payload encryption (fernet)
// and the TLS configuration for the listeners. Both are disabled unless
// configured; invalid material is fatal at startup.
package security

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
)

// ErrDecrypt is returned when an encrypted payload fails verification.
var ErrDecrypt = errors.New("security: payload verification failed")

// Manager applies the configured encryption to outbound payloads and
// verifies inbound ones.
type Manager struct {
	cfg config.SecurityConfig
	key *fernet.Key
}

// New validates the security configuration. A malformed encryption key is an
// error rather than a silent downgrade to plaintext.
func New(cfg config.SecurityConfig) (*Manager, error) {
	m := &Manager{cfg: cfg}
	if cfg.EncryptionKey != "" {
		key, err := fernet.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		m.key = key
	}
	return m, nil
}

// Enabled reports whether payload encryption is configured.
func (m *Manager) Enabled() bool { return m.key != nil }

// Encrypt returns the encrypted form of data, or data unchanged when
// encryption is disabled.
func (m *Manager) Encrypt(data []byte) ([]byte, error) {
	if m.key == nil {
		return data, nil
	}
	return fernet.EncryptAndSign(data, m.key)
}

// Decrypt verifies and decrypts data, or returns it unchanged when
// encryption is disabled.
func (m *Manager) Decrypt(data []byte) ([]byte, error) {
	if m.key == nil {
		return data, nil
	}
	msg := fernet.VerifyAndDecrypt(data, 0, []*fernet.Key{m.key})
	if msg == nil {
		return nil, ErrDecrypt
	}
	return msg, nil
}

// TLSConfig loads the configured certificate pair, or returns nil when TLS
// is disabled.
func (m *Manager) TLSConfig() (*tls.Config, error) {
	if !m.cfg.EnableTLS {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(m.cfg.TLSCertPath, m.cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
