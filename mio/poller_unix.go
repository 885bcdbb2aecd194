// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:build linux

package mio

import (
	"golang.org/x/sys/unix"
)

const epollSupported = true

// epollWaiter is a minimal epoll readiness wait over a set of file
// descriptors. The Reactor does not use it; Listen accepts on a blocking
// goroutine per listener.
type epollWaiter struct {
	fd int
}

func newEpollWaiter() (*epollWaiter, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollWaiter{fd: fd}, nil
}

func (e *epollWaiter) addRead(watchFD int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, watchFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(watchFD),
	})
}

func (e *epollWaiter) removeRead(watchFD int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, watchFD, nil)
}

// wait blocks for up to timeoutMs milliseconds (-1 for indefinitely) and
// returns the fds that became readable.
func (e *epollWaiter) wait(timeoutMs int) ([]int, error) {
	events := make([]unix.EpollEvent, 32)
	n, err := unix.EpollWait(e.fd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	return ready, nil
}

func (e *epollWaiter) close() error {
	return unix.Close(e.fd)
}
