// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The xmppd-s2s command runs the server-to-server gateway
// §4.4: it dials and accepts peer connections, negotiates Server
// Dialback on each, and exchanges application stanzas with the router
// over its own component-protocol link.
//
// For more information try running:
//
//	xmppd-s2s -h
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
	"git.sr.ht/~xmppd/xmppd/internal/dnscache"
	"git.sr.ht/~xmppd/xmppd/s2s"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cli.Parse("xmppd-s2s", args)
	switch err {
	case nil:
	case flag.ErrHelp:
		return 0
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.ConfigPath == "" {
		fmt.Fprintln(os.Stderr, "xmppd-s2s: -c <path> is required")
		return 1
	}

	log := newLogger(opts.Debug)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.WithError(err).Error("xmppd-s2s: failed to load config")
		return 2
	}

	if err := config.WritePIDFile(cfg.PIDFile); err != nil {
		log.WithError(err).Error("xmppd-s2s: failed to write pidfile")
		return 2
	}
	defer config.RemovePIDFile(cfg.PIDFile)

	tlsCfg, err := config.BuildTLSConfig(cfg.Local.Pemfile, cfg.Local.Cachain)
	if err != nil {
		log.WithError(err).Warn("xmppd-s2s: TLS disabled")
		tlsCfg = nil
	}

	var whitelist *accesslist.List
	if cfg.Security.EnableWhitelist {
		whitelist = accesslist.New(accesslist.DenyAllow)
		for _, d := range cfg.Security.WhitelistDomain {
			whitelist.Allow(d)
		}
	}

	g, err := s2s.NewGateway(s2s.Config{
		Local:    cfg.ID,
		BindName: cfg.ID,
		Router: s2s.RouterConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Router.IP, cfg.Router.Port),
			User:     cfg.Router.User,
			Password: cfg.Router.Pass,
		},
		Resolver:    dnscache.NewSRVResolver(cfg.Resolver, nil),
		CacheTTL:    10 * time.Minute,
		Whitelist:   whitelist,
		TLS:         tlsCfg,
		RequireTLS:  cfg.Security.RequireTLS,
		DialTimeout: 30 * time.Second,
		Reap: s2s.ReapConfig{
			Interval:  time.Duration(cfg.Check.Interval),
			Queue:     time.Duration(cfg.Check.Queue),
			Keepalive: time.Duration(cfg.Check.Keepalive),
			Idle:      time.Duration(cfg.Check.Idle),
		},
		Log: log.WithField("component", "s2s"),
	})
	if err != nil {
		log.WithError(err).Error("xmppd-s2s: failed to construct gateway")
		return 2
	}

	addr := fmt.Sprintf("%s:%d", cfg.Local.IP, cfg.Local.Port)
	if err := g.Listen("tcp", addr); err != nil {
		log.WithError(err).WithField("addr", addr).Error("xmppd-s2s: failed to listen")
		return 2
	}
	log.WithField("addr", addr).Info("xmppd-s2s: listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sig
		log.Info("xmppd-s2s: shutting down")
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

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
