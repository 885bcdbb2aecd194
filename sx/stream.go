// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"git.sr.ht/~xmppd/xmppd/internal/genid"
	"git.sr.ht/~xmppd/xmppd/internal/ns"
	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/stream"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Handler receives each top-level stanza NAD once a Stream reaches Ready.
// The NAD is only valid for the duration of the call; implementations
// that need to keep it past return must copy what they need out of it.
type Handler func(s *Stream, n *nad.NAD)

// Stream is the per-connection streaming-XML state machine described in
// it owns the transport, the incremental parser, the
// outbound write queue, and the ordered Plugin chain that negotiates
// TLS/SASL/bind features.
type Stream struct {
	Conn net.Conn

	ID       string
	To, From string
	Lang     string

	// MaxStanzaSize, if non-zero, bounds the serialized size of a single
	// top-level stanza; exceeding it closes the stream with
	// policy-violation.
	MaxStanzaSize int

	state   State
	plugins []Plugin
	cache   *nad.Cache

	dec    *xml.Decoder
	sizer  *sizeTrackingReader
	queue  writeQueue

	Log *logrus.Entry

	// App is invoked for each top-level stanza once the stream is Ready.
	App Handler

	// OnReady is invoked once negotiation completes (state gains Ready).
	OnReady func(s *Stream)

	// Namespace overrides the stream content namespace written in the
	// opening tag (jabber:client / jabber:server by default, inferred
	// from the S2S state bit). Set it explicitly for other protocols
	// layered over sx, such as the router's jabber:component:accept
	// wire format.
	Namespace string

	throttledUntil time.Time

	closed bool
}

// New constructs a Stream over conn. plugins are consulted in order for
// both feature offers and negotiation; role is set via the Received bit
// in initial.
func New(conn net.Conn, cache *nad.Cache, plugins []Plugin, initial State, log *logrus.Entry) *Stream {
	s := &Stream{
		Conn:    conn,
		state:   initial,
		plugins: plugins,
		cache:   cache,
		Log:     log,
	}
	s.sizer = &sizeTrackingReader{r: conn}
	s.dec = xml.NewDecoder(s.sizer)
	return s
}

// State reports the stream's current negotiation state.
func (s *Stream) State() State { return s.state }

// free releases plugin-owned resources through each plugin's Free hook; called by the
// DeadQueue once the stream is scheduled for collection.
func (s *Stream) free() {
	for _, p := range s.plugins {
		if p.Free != nil {
			p.Free(s)
		}
	}
}

// Close sends a closing </stream:stream> (best effort) and closes the
// transport.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = fmt.Fprint(s.Conn, `</stream:stream>`)
	return s.Conn.Close()
}

// CloseError sends a stream-level error followed by the closing tag, then
// closes the transport, per the rule that stream-level errors emit
// </stream:stream> then close."
func (s *Stream) CloseError(e stream.Error) error {
	if s.closed {
		return nil
	}
	enc := xml.NewEncoder(s.Conn)
	if err := e.WriteXML(enc, xml.StartElement{}); err != nil {
		_ = s.Conn.Close()
		s.closed = true
		return err
	}
	return s.Close()
}

// Accept performs the server-role handshake:
// consume the peer's opening <stream:stream>, capture to/from/version,
// emit our own header with a generated id, then loop offering and
// negotiating features until Ready or an error.
func (s *Stream) Accept() error {
	s.state |= Received
	if err := s.readOpenTag(); err != nil {
		return err
	}
	s.ID = genid.Stream()
	if err := s.writeOpenTag(); err != nil {
		return err
	}
	return s.negotiateLoop()
}

// Dial performs the client/peer-initiating-role handshake: send our
// opening tag first, then read the peer's.
func (s *Stream) Dial(to string) error {
	s.To = to
	if err := s.writeOpenTag(); err != nil {
		return err
	}
	if err := s.readOpenTag(); err != nil {
		return err
	}
	return s.negotiateLoop()
}

func (s *Stream) writeOpenTag() error {
	namespace := s.Namespace
	if namespace == "" {
		namespace = streamNamespace(s.state)
	}
	_, err := fmt.Fprintf(s.Conn,
		`%s<stream:stream xmlns='%s' xmlns:stream='%s' to='%s' from='%s' id='%s' version='1.0' xml:lang='%s'>`,
		xmlHeader, namespace, ns.Stream, xmlEscape(s.To), xmlEscape(s.From), s.ID, s.Lang,
	)
	return err
}

func streamNamespace(state State) string {
	if state.Has(S2S) {
		return ns.Server
	}
	return ns.Client
}

func (s *Stream) readOpenTag() error {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "stream" || start.Name.Space != ns.Stream {
			return stream.InvalidNamespace
		}
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "to":
				s.To = a.Value
			case "from":
				s.From = a.Value
			case "id":
				if s.state.Has(Received) {
					// Clients don't set id; ignore if present.
					continue
				}
				s.ID = a.Value
			}
		}
		return nil
	}
}

// negotiateLoop writes <stream:features/> (Received role) or reads and
// negotiates the peer's feature list (initiating role), repeating after
// every reset, until the stream reaches Ready or negotiation fails.
func (s *Stream) negotiateLoop() error {
	for !s.state.Has(Ready) {
		if s.state.Has(Received) {
			more, err := s.offerFeatures()
			if err != nil {
				return err
			}
			if !more {
				s.state |= Ready
				break
			}
		} else {
			more, err := s.selectFeature()
			if err != nil {
				return err
			}
			if !more {
				s.state |= Ready
				break
			}
		}
	}
	if s.OnReady != nil {
		s.OnReady(s)
	}
	return nil
}

// offerFeatures writes <stream:features/> and waits for the peer to pick
// one, dispatching to the matching plugin's Negotiate.
func (s *Stream) offerFeatures() (more bool, err error) {
	enc := xml.NewEncoder(s.Conn)
	if err = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "stream:features"}}); err != nil {
		return false, err
	}
	offered := 0
	for i := range s.plugins {
		p := &s.plugins[i]
		if p.Features == nil || !p.offered(s.state) {
			continue
		}
		if _, err = p.Features(s, enc); err != nil {
			return false, err
		}
		offered++
	}
	if err = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "stream:features"}}); err != nil {
		return false, err
	}
	if err = enc.Flush(); err != nil {
		return false, err
	}
	if offered == 0 {
		return false, nil
	}

	tok, err := s.dec.Token()
	if err != nil {
		return false, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return false, stream.BadFormat
	}
	return s.dispatchNegotiate(start)
}

// selectFeature reads <stream:features/> and negotiates the first
// recognized child.
func (s *Stream) selectFeature() (more bool, err error) {
	tok, err := s.dec.Token()
	if err != nil {
		return false, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "features" || start.Name.Space != ns.Stream {
		return false, stream.BadFormat
	}
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			for i := range s.plugins {
				p := &s.plugins[i]
				if p.Name == t.Name && p.Negotiate != nil && p.offered(s.state) {
					return s.negotiatePlugin(p, t)
				}
			}
			if err := s.dec.Skip(); err != nil {
				return false, err
			}
		case xml.EndElement:
			return false, nil
		}
	}
}

func (s *Stream) dispatchNegotiate(start xml.StartElement) (more bool, err error) {
	for i := range s.plugins {
		p := &s.plugins[i]
		if p.initiatorName() == start.Name && p.Negotiate != nil && p.offered(s.state) {
			return s.negotiatePlugin(p, start)
		}
	}
	return false, fmt.Errorf("sx: unsupported feature %s", start.Name.Local)
}

func (s *Stream) negotiatePlugin(p *Plugin, start xml.StartElement) (more bool, err error) {
	mask, reset, err := p.Negotiate(s, start)
	if err != nil {
		return false, err
	}
	s.state |= mask
	if reset {
		s.Reset()
	}
	return true, nil
}

// Reset reinitializes the parser over the (possibly just-swapped)
// transport and returns the state to the pre-stream-header portion of
// negotiation, per the reset semantics: socket and identity
// continue, but the peer is expected to resend <stream:stream>.
func (s *Stream) Reset() {
	s.sizer = &sizeTrackingReader{r: s.Conn}
	s.dec = xml.NewDecoder(s.sizer)
	if s.state.Has(Received) {
		if err := s.readOpenTag(); err != nil {
			return
		}
	} else {
		if err := s.writeOpenTag(); err != nil {
			return
		}
		_ = s.readOpenTag()
		return
	}
	_ = s.writeOpenTag()
}

// Throttle suspends further reads from this stream's per-connection
// goroutine until d has elapsed, the Go rendering of the
// "clear READ interest for throttle seconds" (each stream already owns a
// dedicated goroutine, so suspension is a plain sleep rather than an
// epoll interest-set edit).
func (s *Stream) Throttle(d time.Duration) {
	s.throttledUntil = time.Now().Add(d)
}

// Run reads top-level stanza NADs until the stream closes or errors,
// dispatching each to App. It blocks, and is meant to be called from a
// dedicated per-connection goroutine (the reactor's "blocking syscall"
// goroutine) rather than the reactor's single dispatch point.
func (s *Stream) Run() error {
	for {
		if until := s.throttledUntil; !until.IsZero() {
			if d := time.Until(until); d > 0 {
				time.Sleep(d)
			}
			s.throttledUntil = time.Time{}
		}
		off := s.dec.InputOffset()
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "stream" && start.Name.Space == ns.Stream {
			continue
		}
		n, err := nad.ParseElement(s.dec, start, s.cache)
		if err != nil {
			return err
		}
		if s.MaxStanzaSize > 0 && int(s.dec.InputOffset()-off) > s.MaxStanzaSize {
			n.Free()
			_ = s.CloseError(stream.PolicyViolation)
			return stream.PolicyViolation
		}
		if s.App != nil {
			s.App(s, n)
		}
		n.Free()
	}
}

// sizeTrackingReader counts bytes read from the transport since the last
// reset. The decoder reads through it in buffered chunks, so Run measures
// stanza size with the decoder's own input offset instead.
type sizeTrackingReader struct {
	r net.Conn
	n int
}

func (t *sizeTrackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.n += n
	return n, err
}

func (t *sizeTrackingReader) reset() { t.n = 0 }

// ParseElement parses the subtree rooted at an already-read start element
// into a NAD, using this stream's own decoder and cache. Plugins whose
// Negotiate hook needs to inspect a wrapped stanza (BindPlugin, and
// c2s's in-band-registration plugin) use this instead of duplicating
// nad.ParseElement's two-argument call.
func (s *Stream) ParseElement(start xml.StartElement) (*nad.NAD, error) {
	return nad.ParseElement(s.dec, start, s.cache)
}

// ReadElement reads the next top-level stanza NAD synchronously, the way
// Run's internal loop does, but returns it to the caller instead of
// dispatching to App. It exists for short protocol exchanges that must
// happen before App is wired up and Run is started, such as a
// component-protocol client waiting for its bind request to be
// acknowledged (c2s's router link).
func (s *Stream) ReadElement() (*nad.NAD, error) {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "stream" && start.Name.Space == ns.Stream {
			continue
		}
		return nad.ParseElement(s.dec, start, s.cache)
	}
}

// QueueNAD serializes n and queues it for write, firing notify (if
// non-nil) once fully flushed.
func (s *Stream) QueueNAD(n *nad.NAD, notify func()) error {
	var buf bytes.Buffer
	if _, err := n.WriteTo(&buf); err != nil {
		return err
	}
	s.queue.push(buf.Bytes(), notify)
	return s.Flush()
}

// QueueRaw queues raw bytes for write, e.g. <proceed/> or <success/>.
func (s *Stream) QueueRaw(p []byte, notify func()) error {
	s.queue.push(p, notify)
	return s.Flush()
}

// Flush drains as much of the write queue as the transport accepts.
func (s *Stream) Flush() error {
	_, err := s.queue.drain(s.Conn.Write)
	return err
}

func xmlEscape(v string) string {
	var buf []byte
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\'':
			buf = append(buf, "&apos;"...)
		case '&':
			buf = append(buf, "&amp;"...)
		case '<':
			buf = append(buf, "&lt;"...)
		case '>':
			buf = append(buf, "&gt;"...)
		default:
			buf = append(buf, v[i])
		}
	}
	return string(buf)
}
