// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePIDFileWritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmppd.pid")
	require.NoError(t, WritePIDFile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(body))
}

func TestWritePIDFileEmptyPathNoop(t *testing.T) {
	require.NoError(t, WritePIDFile(""))
}

func TestRemovePIDFileDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmppd.pid")
	require.NoError(t, WritePIDFile(path))

	RemovePIDFile(path)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestRemovePIDFileMissingFileNoop(t *testing.T) {
	RemovePIDFile(filepath.Join(t.TempDir(), "missing.pid"))
}
