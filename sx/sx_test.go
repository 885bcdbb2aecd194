// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sx_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return logrus.NewEntry(l)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestHandshakeCompletesWithNoFeatures exercises the server-role handshake
// with an empty plugin chain: the features list is empty so negotiation
// reaches Ready immediately after one round trip.
func TestHandshakeCompletesWithNoFeatures(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cache := nad.NewCache()
	s := sx.New(server, cache, nil, 0, discardLog())

	done := make(chan error, 1)
	go func() { done <- s.Accept() }()

	_, err := fmt.Fprint(client, `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' to='example.com' version='1.0'>`)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, err := readUntilClosed(bufio.NewReader(client), "</stream:features>")
	require.NoError(t, err)
	require.Contains(t, out, "<stream:stream")

	require.NoError(t, <-done)
	require.True(t, s.State().Has(sx.Ready))
}

// TestRunEnforcesMaxStanzaSizeBoundary checks that a stanza under
// MaxStanzaSize reaches App, and that one whose body alone exceeds it makes
// Run close the stream and return an error.
func TestRunEnforcesMaxStanzaSizeBoundary(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	go func() { _, _ = io.Copy(io.Discard, client) }()

	cache := nad.NewCache()
	s := sx.New(server, cache, nil, 0, discardLog())
	s.MaxStanzaSize = 64

	var received []string
	s.App = func(_ *sx.Stream, n *nad.NAD) {
		received = append(received, n.ElementName(n.Root()))
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run() }()

	// A small stanza that comfortably fits under the limit.
	small := `<message><body>hi</body></message>`
	require.LessOrEqual(t, len(small), s.MaxStanzaSize)
	_, err := client.Write([]byte(small))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Len(t, received, 1)

	// Now send a stanza whose body alone is one byte larger than the
	// configured limit.
	filler := make([]byte, s.MaxStanzaSize+1)
	for i := range filler {
		filler[i] = 'x'
	}
	big := fmt.Sprintf(`<message><body>%s</body></message>`, filler)
	_, _ = client.Write([]byte(big))

	select {
	case err := <-runErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exceeding MaxStanzaSize")
	}
}
