// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:build linux

package mio

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpollWaiterReportsReadiness(t *testing.T) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	w, err := newEpollWaiter()
	require.NoError(t, err)
	defer w.close()

	require.NoError(t, w.addRead(fds[0]))

	ready, err := w.wait(0)
	require.NoError(t, err)
	require.Empty(t, ready, "nothing written yet")

	_, err = syscall.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	ready, err = w.wait(1000)
	require.NoError(t, err)
	require.Equal(t, []int{fds[0]}, ready)

	require.NoError(t, w.removeRead(fds[0]))
}
