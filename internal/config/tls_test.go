// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeTestCert generates a self-signed cert/key pair into a single
// combined PEM file, the same private-key-then-certificate generation
// mellium's own integration-test cert helper uses.
func writeTestCert(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{"example.com"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "combined.pem")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, pem.Encode(f, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	return path
}

func TestBuildTLSConfigEmptyPemfileDisablesTLS(t *testing.T) {
	cfg, err := BuildTLSConfig("", "")
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestBuildTLSConfigLoadsCombinedPEM(t *testing.T) {
	path := writeTestCert(t)
	cfg, err := BuildTLSConfig(path, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Certificates, 1)
}

func TestBuildTLSConfigMissingFileReturnsError(t *testing.T) {
	_, err := BuildTLSConfig(filepath.Join(t.TempDir(), "missing.pem"), "")
	require.Error(t, err)
}

func TestBuildTLSConfigInvalidCachainReturnsError(t *testing.T) {
	path := writeTestCert(t)
	bad := filepath.Join(t.TempDir(), "bad-ca.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o644))

	_, err := BuildTLSConfig(path, bad)
	require.Error(t, err)
}

func TestBuildAccessListAllowDenyDefault(t *testing.T) {
	l := BuildAccessList(Access{Order: "allow,deny", Deny: []string{"evil.example.com"}})
	require.True(t, l.Permit("example.com"))
	require.False(t, l.Permit("evil.example.com"))
}

func TestBuildAccessListDenyAllowDefault(t *testing.T) {
	l := BuildAccessList(Access{Order: "deny,allow", Allow: []string{"example.com"}})
	require.True(t, l.Permit("example.com"))
	require.False(t, l.Permit("other.example.net"))
}
