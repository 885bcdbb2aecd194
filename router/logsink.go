// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"compress/gzip"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~xmppd/xmppd/nad"
)

// MessageLogConfig configures the router's rolling message log.
type MessageLogConfig struct {
	// Path is the live log file's base path; rotated files are written
	// alongside it as <Path>.<seq>[.gz].
	Path string

	// MaxBytes rotates the live file once its size exceeds this many
	// bytes. Zero disables size-based rotation.
	MaxBytes int64

	// MaxAge rotates the live file once it is older than this duration.
	// Zero disables age-based rotation.
	MaxAge time.Duration

	// GzipRotated compresses rotated files with gzip.
	GzipRotated bool

	// LogGroupChat carries the group_chat configuration switch. The
	// logger does not read it: group-chat messages are logged like any
	// other message, and only FilterMUCFrom excludes any of them.
	LogGroupChat bool

	// FilterMUCFrom suppresses logging of messages whose from-domain is
	// in this set.
	FilterMUCFrom map[string]bool
}

// messageLogger appends canonicalized <message/> stanzas to a rotating
// flat file, with the rotation scheme described for
// the router's own log (suffix .N, optionally .N.gz).
type messageLogger struct {
	cfg     MessageLogConfig
	f       *os.File
	size    int64
	opened  time.Time
	nextSeq int
}

func newMessageLogger(cfg MessageLogConfig) (*messageLogger, error) {
	l := &messageLogger{cfg: cfg}
	if cfg.Path == "" {
		return l, nil
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *messageLogger) open() error {
	f, err := os.OpenFile(l.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.f = f
	l.size = fi.Size()
	l.opened = fi.ModTime()
	return nil
}

// logRoute writes the routed stanza to the log if it qualifies, and mirrors
// it to every registered log-sink component as a <route type='unicast'>.
func (r *Router) logRoute(source *Component, to, from, routeType string, n *nad.NAD) {
	stanzaElem := routeElem(n)
	if stanzaElem == nad.None || n.ElementName(stanzaElem) != "message" {
		return
	}

	r.logger.log(n, stanzaElem, to, from)

	for _, sink := range r.table.LogSinks() {
		wrapped := wrapRoute(r.cache, n, stanzaElem, to)
		_ = sink.Stream.QueueNAD(wrapped, nil)
		wrapped.Free()
	}
}

func (l *messageLogger) log(n *nad.NAD, stanzaElem int, to, from string) {
	if l.f == nil {
		return
	}
	fromDomain := domainOf(from)
	if l.cfg.FilterMUCFrom != nil && l.cfg.FilterMUCFrom[fromDomain] {
		return
	}

	body := ""
	if b := firstChildNamed(n, stanzaElem, "body"); b != nad.None {
		body = n.ElementCData(b)
	}
	line := fmt.Sprintf("%s from=%q to=%q body=%q\n",
		time.Now().UTC().Format(time.RFC3339), from, to, body)

	if err := l.rotateIfNeeded(int64(len(line))); err != nil {
		return
	}
	nwritten, err := l.f.WriteString(line)
	if err == nil {
		l.size += int64(nwritten)
	}
}

func firstChildNamed(n *nad.NAD, parent int, name string) int {
	for c := n.FirstChild(parent); c != nad.None; c = n.NextSibling(c) {
		if n.ElementName(c) == name {
			return c
		}
	}
	return nad.None
}

func domainOf(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[i+1:]
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

func (l *messageLogger) rotateIfNeeded(nextWrite int64) error {
	needRotate := false
	if l.cfg.MaxBytes > 0 && l.size+nextWrite > l.cfg.MaxBytes {
		needRotate = true
	}
	if l.cfg.MaxAge > 0 && time.Since(l.opened) > l.cfg.MaxAge {
		needRotate = true
	}
	if !needRotate {
		return nil
	}
	return l.rotate()
}

func (l *messageLogger) rotate() error {
	if l.f != nil {
		l.f.Close()
	}
	l.nextSeq++
	rotated := l.cfg.Path + "." + strconv.Itoa(l.nextSeq)
	if err := os.Rename(l.cfg.Path, rotated); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.cfg.GzipRotated {
		if err := gzipFile(rotated); err == nil {
			os.Remove(rotated)
		}
	}
	return l.open()
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := gw.Write(buf[:n]); werr != nil {
				gw.Close()
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	return gw.Close()
}
