// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The xmppd-router command runs the router process: it
// accepts component connections from the C2S and S2S gateways, and
// forwards application stanzas between them according to its route
// table.
//
// For more information try running:
//
//	xmppd-router -h
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/cmd/internal/cli"
	"git.sr.ht/~xmppd/xmppd/internal/accesslist"
	"git.sr.ht/~xmppd/xmppd/internal/config"
	"git.sr.ht/~xmppd/xmppd/router"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cli.Parse("xmppd-router", args)
	switch err {
	case nil:
	case flag.ErrHelp:
		return 0
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.ConfigPath == "" {
		fmt.Fprintln(os.Stderr, "xmppd-router: -c <path> is required")
		return 1
	}

	log := newLogger(opts.Debug)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.WithError(err).Error("xmppd-router: failed to load config")
		return 2
	}

	if err := config.WritePIDFile(cfg.PIDFile); err != nil {
		log.WithError(err).Error("xmppd-router: failed to write pidfile")
		return 2
	}
	defer config.RemovePIDFile(cfg.PIDFile)

	bindACL := config.BuildAccessList(cfg.IO.Access)
	routeACL := accesslist.New(accesslist.AllowDeny)

	users := router.UserTable{
		Domain: cfg.ID,
		Users:  map[string]string{cfg.Router.User: cfg.Router.Pass},
	}

	filterFrom := make(map[string]bool, len(cfg.MessageLogging.FilterMUCFrom))
	for _, d := range cfg.MessageLogging.FilterMUCFrom {
		filterFrom[d] = true
	}

	r, err := router.NewRouter(router.Config{
		ID:          cfg.ID,
		DefaultName: cfg.DefaultComponent,
		BindACL:     bindACL,
		RouteACL:    routeACL,
		Users:       users,
		Rate: router.BindRate{
			Limit:    cfg.IO.Limits.Bytes,
			Window:   time.Duration(cfg.IO.Limits.Seconds) * time.Second,
			Throttle: time.Duration(cfg.IO.Limits.Throttle),
		},
		MessageLog: router.MessageLogConfig{
			Path:          cfg.MessageLogging.Path,
			MaxBytes:      cfg.MessageLogging.MaxBytes,
			MaxAge:        time.Duration(cfg.MessageLogging.MaxAge),
			GzipRotated:   cfg.MessageLogging.Gzip,
			LogGroupChat:  cfg.MessageLogging.GroupChat,
			FilterMUCFrom: filterFrom,
		},
		Log: log.WithField("component", "router"),
	})
	if err != nil {
		log.WithError(err).Error("xmppd-router: failed to construct router")
		return 2
	}

	addr := fmt.Sprintf("%s:%d", cfg.Router.IP, cfg.Router.Port)
	if err := r.Listen("tcp", addr); err != nil {
		log.WithError(err).WithField("addr", addr).Error("xmppd-router: failed to listen")
		return 2
	}
	log.WithField("addr", addr).Info("xmppd-router: listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sig
		log.Info("xmppd-router: shutting down")
		r.Shutdown(30 * time.Second)
		close(done)
	}()

	for {
		select {
		case <-done:
			return 0
		default:
			r.Run(time.Second)
		}
	}
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
