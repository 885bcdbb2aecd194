// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strconv"
)

// WritePIDFile writes the current process's PID to path as a single
// ASCII integer. Forking/setsid is explicitly out of scope, so this is the
// entire extent of this process's daemonization support.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	body := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("config: write pidfile %s: %w", path, err)
	}
	return nil
}

// RemovePIDFile removes a PID file written by WritePIDFile, ignoring a
// not-exist error since Shutdown may run after some other process or
// operator already cleaned it up.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
