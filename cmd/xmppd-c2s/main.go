// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The xmppd-c2s command runs the client-to-server gateway
// §4.3: it accepts client connections, drives each through
// STARTTLS/SASL/resource-bind negotiation, and exchanges application
// stanzas with the router over its own component-protocol link.
//
// For more information try running:
//
//	xmppd-c2s -h
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/c2s"
	"git.sr.ht/~xmppd/xmppd/cmd/internal/cli"
	"git.sr.ht/~xmppd/xmppd/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cli.Parse("xmppd-c2s", args)
	switch err {
	case nil:
	case flag.ErrHelp:
		return 0
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.ConfigPath == "" {
		fmt.Fprintln(os.Stderr, "xmppd-c2s: -c <path> is required")
		return 1
	}

	log := newLogger(opts.Debug)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.WithError(err).Error("xmppd-c2s: failed to load config")
		return 2
	}

	if err := config.WritePIDFile(cfg.PIDFile); err != nil {
		log.WithError(err).Error("xmppd-c2s: failed to write pidfile")
		return 2
	}
	defer config.RemovePIDFile(cfg.PIDFile)

	tlsCfg, err := config.BuildTLSConfig(cfg.Local.Pemfile, cfg.Local.Cachain)
	if err != nil {
		// the rule that "failure to load TLS certificates is logged and
		// TLS is disabled", not fatal.
		log.WithError(err).Warn("xmppd-c2s: TLS disabled")
		tlsCfg = nil
	}

	// the gateway keys sessions by realm==id; multi-realm virtual hosting
	// is out of scope, so only the id half of "id[@realm]" is used.
	id, _ := config.SplitIDRealm(cfg.Local.ID)

	provider := c2s.NewMapProvider(id, nil)

	g, err := c2s.NewGateway(c2s.Config{
		Realm: id,
		Router: c2s.RouterConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Router.IP, cfg.Router.Port),
			User:     cfg.Router.User,
			Password: cfg.Router.Pass,
		},
		Provider:          provider,
		TLS:               tlsCfg,
		RequireTLS:        cfg.Local.RequireStartTLS,
		AllowRegistration: cfg.Authreg.Register.Enable,
		Conflict:          conflictPolicy(cfg.Authreg.Register.AllowUnbound),
		Reap: c2s.ReapConfig{
			Interval:  time.Duration(cfg.IO.Check.Interval),
			Idle:      time.Duration(cfg.IO.Check.Idle),
			Keepalive: time.Duration(cfg.IO.Check.Keepalive),
		},
		Log: log.WithField("component", "c2s"),
	})
	if err != nil {
		log.WithError(err).Error("xmppd-c2s: failed to construct gateway")
		return 2
	}
	defer provider.Free()

	addr := fmt.Sprintf("%s:%d", cfg.Local.IP, cfg.Local.Port)
	if err := g.Listen("tcp", addr); err != nil {
		log.WithError(err).WithField("addr", addr).Error("xmppd-c2s: failed to listen")
		return 2
	}
	log.WithField("addr", addr).Info("xmppd-c2s: listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sig
		log.Info("xmppd-c2s: shutting down")
		g.Shutdown(30 * time.Second)
		close(done)
	}()

	for {
		select {
		case <-done:
			return 0
		default:
			g.Run(time.Second)
		}
	}
}

// conflictPolicy maps the registration config's allow-unbound flag onto
// a ConflictPolicy: a server that lets in-band registration create
// accounts freely is assumed to prefer replacing a conflicting resource
// over rejecting the newer client outright. Operators wanting stricter
// behavior configure AllowUnbound=false.
func conflictPolicy(allowUnbound bool) c2s.ConflictPolicy {
	if allowUnbound {
		return c2s.Replace
	}
	return c2s.Disallow
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
