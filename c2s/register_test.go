// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~xmppd/xmppd/nad"
	"git.sr.ht/~xmppd/xmppd/sx"
)

func TestRegisterPluginCreatesNewUser(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	provider := NewMapProvider("example.com", nil)
	s := sx.New(server, nad.NewCache(), []sx.Plugin{newRegisterPlugin("example.com", provider)}, sx.None, discardLog())

	done := make(chan error, 1)
	go func() { done <- s.Accept() }()

	_, err := fmt.Fprint(client, `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' to='example.com' version='1.0'>`)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(client)
	_, err = br.ReadString('>')
	require.NoError(t, err)
	featuresLine, err := readUntilClosedReg(br, "</stream:features>")
	require.NoError(t, err)
	require.Contains(t, featuresLine, "register")

	_, err = fmt.Fprint(client, `<iq id='reg1' type='set'><query xmlns='jabber:iq:register'><username>newuser</username><password>hunter2</password></query></iq>`)
	require.NoError(t, err)

	reply, err := br.ReadString('>')
	require.NoError(t, err)
	require.Contains(t, reply, "type='result'")

	ok, err := provider.UserExists(context.Background(), "newuser", "example.com")
	require.NoError(t, err)
	require.True(t, ok)

	client.Close()
	<-done
}

func TestRegisterPluginRejectsDuplicateUser(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	provider := NewMapProvider("example.com", map[string]string{"alice": "secret"})
	s := sx.New(server, nad.NewCache(), []sx.Plugin{newRegisterPlugin("example.com", provider)}, sx.None, discardLog())

	done := make(chan error, 1)
	go func() { done <- s.Accept() }()

	_, err := fmt.Fprint(client, `<?xml version='1.0'?><stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' to='example.com' version='1.0'>`)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(client)
	_, err = br.ReadString('>')
	require.NoError(t, err)
	_, err = readUntilClosedReg(br, "</stream:features>")
	require.NoError(t, err)

	_, err = fmt.Fprint(client, `<iq id='reg1' type='set'><query xmlns='jabber:iq:register'><username>alice</username><password>hunter2</password></query></iq>`)
	require.NoError(t, err)

	reply, err := readUntilClosedReg(br, "</iq>")
	require.NoError(t, err)
	require.Contains(t, reply, "conflict")

	// Stream keeps negotiating afterward rather than failing.
	_, err = readUntilClosedReg(br, "</stream:features>")
	require.NoError(t, err)

	client.Close()
	<-done
}

func readUntilClosedReg(br *bufio.Reader, closeTag string) (string, error) {
	var out []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return string(out), err
		}
		out = append(out, b)
		if len(out) >= len(closeTag) && string(out[len(out)-len(closeTag):]) == closeTag {
			return string(out), nil
		}
	}
}
