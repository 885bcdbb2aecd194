// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `<?xml version='1.0'?>
<config>
  <id>s2s.example.com</id>
  <router>
    <ip>127.0.0.1</ip>
    <port>5347</port>
    <user>s2s</user>
    <pass>secret</pass>
    <retry>
      <init>5</init>
      <lost>20</lost>
      <sleep>3s</sleep>
    </retry>
  </router>
  <local>
    <ip>0.0.0.0</ip>
    <port>5269</port>
    <id>example.com@example.com</id>
  </local>
  <io>
    <max_fds>1024</max_fds>
    <check>
      <interval>10s</interval>
      <idle>10m</idle>
      <keepalive>55s</keepalive>
    </check>
    <limits>
      <bytes>1048576</bytes>
      <connects>10</connects>
    </limits>
    <access>
      <order>allow,deny</order>
      <allow>example.com</allow>
      <deny>evil.example.com</deny>
    </access>
  </io>
  <check>
    <queue>45s</queue>
  </check>
  <security>
    <require_tls>true</require_tls>
    <enable_whitelist>true</enable_whitelist>
    <whitelist_domain>trusted.example.com</whitelist_domain>
    <whitelist_domain>partner.example.net</whitelist_domain>
  </security>
  <aliases>
    <alias name='muc.example.com' target='conference.example.com' />
  </aliases>
</config>
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesNestedGroups(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "s2s.example.com", cfg.ID)
	require.Equal(t, "127.0.0.1", cfg.Router.IP)
	require.Equal(t, 5347, cfg.Router.Port)
	require.Equal(t, 5, cfg.Router.Retry.Init)
	require.Equal(t, 20, cfg.Router.Retry.Lost)
	require.Equal(t, 3*time.Second, time.Duration(cfg.Router.Retry.Sleep))

	require.Equal(t, 5269, cfg.Local.Port)
	require.Equal(t, int64(1048576), cfg.IO.Limits.Bytes)
	require.Equal(t, "allow,deny", cfg.IO.Access.Order)
	require.ElementsMatch(t, []string{"example.com"}, cfg.IO.Access.Allow)
	require.ElementsMatch(t, []string{"evil.example.com"}, cfg.IO.Access.Deny)

	require.True(t, cfg.Security.RequireTLS)
	require.True(t, cfg.Security.EnableWhitelist)
	require.ElementsMatch(t, []string{"trusted.example.com", "partner.example.net"}, cfg.Security.WhitelistDomain)

	require.Len(t, cfg.Aliases.Alias, 1)
	require.Equal(t, "muc.example.com", cfg.Aliases.Alias[0].Name)
	require.Equal(t, "conference.example.com", cfg.Aliases.Alias[0].Target)
}

func TestLoadAppliesDefaultsWhenOmitted(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	// check.queue was set explicitly to 45s; check.interval/keepalive/idle
	// were omitted and should fall back to applyDefaults' values.
	require.Equal(t, 45*time.Second, time.Duration(cfg.Check.Queue))
	require.Equal(t, 10*time.Second, time.Duration(cfg.Check.Interval))
	require.Equal(t, 55*time.Second, time.Duration(cfg.Check.Keepalive))
	require.Equal(t, 10*time.Minute, time.Duration(cfg.Check.Idle))
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
}

func TestLoadInvalidXMLReturnsError(t *testing.T) {
	path := writeTempConfig(t, "<config><id>broken</config>")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSplitIDRealm(t *testing.T) {
	id, realm := SplitIDRealm("example.com@example.net")
	require.Equal(t, "example.com", id)
	require.Equal(t, "example.net", realm)

	id, realm = SplitIDRealm("example.com")
	require.Equal(t, "example.com", id)
	require.Equal(t, "example.com", realm)
}

func TestDurationUnmarshalRejectsInvalidText(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
