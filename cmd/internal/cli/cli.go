// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package cli implements the `-c`/`-D`/`-h` flag surface every executable
// requires, built on the standard flag.NewFlagSet/Usage pattern.
package cli // import "git.sr.ht/~xmppd/xmppd/cmd/internal/cli"

import (
	"flag"
	"fmt"
	"io"
)

// Options holds the three flags every binary accepts.
type Options struct {
	ConfigPath string
	Debug      bool
}

// Parse parses args (normally os.Args[1:]) against name's flag set,
// matching flag.ErrHelp through unchanged so callers can treat -h/-?
// as the conventional success exit (0), distinct from a usage
// error (1).
func Parse(name string, args []string) (Options, error) {
	var opts Options
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.Usage = func() {
		usage(flags.Output(), name)
	}
	flags.StringVar(&opts.ConfigPath, "c", "", "path to the XML configuration file")
	flags.BoolVar(&opts.Debug, "D", false, "enable debug logging")
	// -? is not a valid long-flag name under package flag's parser, so
	// it is aliased to the same destination as -h by also registering
	// it as its own bool flag; flag.ErrHelp is still returned by -h.
	help := flags.Bool("?", false, "show this help message")

	err := flags.Parse(args)
	if *help && err == nil {
		flags.Usage()
		return opts, flag.ErrHelp
	}
	return opts, err
}

func usage(w io.Writer, name string) {
	fmt.Fprintf(w, "Usage of %s:\n\n", name)
	fmt.Fprintf(w, "  -c <path>  path to the XML configuration file\n")
	fmt.Fprintf(w, "  -D         enable debug logging\n")
	fmt.Fprintf(w, "  -h, -?     show this help message\n")
}
