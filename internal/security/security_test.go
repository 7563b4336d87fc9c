package security

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
)

func generateKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func TestDisabledPassthrough(t *testing.T) {
	m, err := New(config.SecurityConfig{})
	require.NoError(t, err)
	assert.False(t, m.Enabled())

	data := []byte("payload")
	enc, err := m.Encrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, enc)

	dec, err := m.Decrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m, err := New(config.SecurityConfig{EncryptionKey: generateKey(t)})
	require.NoError(t, err)
	require.True(t, m.Enabled())

	data := []byte("frame bytes")
	enc, err := m.Encrypt(data)
	require.NoError(t, err)
	assert.NotEqual(t, data, enc)

	dec, err := m.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	m, err := New(config.SecurityConfig{EncryptionKey: generateKey(t)})
	require.NoError(t, err)

	enc, err := m.Encrypt([]byte("frame"))
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xFF

	_, err = m.Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestInvalidKeyIsFatal(t *testing.T) {
	_, err := New(config.SecurityConfig{EncryptionKey: "not-a-key"})
	assert.Error(t, err)
}

func TestTLSDisabled(t *testing.T) {
	m, err := New(config.SecurityConfig{})
	require.NoError(t, err)

	cfg, err := m.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTLSMissingMaterial(t *testing.T) {
	m, err := New(config.SecurityConfig{
		EnableTLS:   true,
		TLSCertPath: "/nonexistent/cert.pem",
		TLSKeyPath:  "/nonexistent/key.pem",
	})
	require.NoError(t, err)

	_, err = m.TLSConfig()
	assert.Error(t, err)
}
