// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package c2s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapProviderCreateGetCheckPassword(t *testing.T) {
	p := NewMapProvider("example.com", nil)
	ctx := context.Background()

	ok, err := p.UserExists(ctx, "alice", "example.com")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.CreateUser(ctx, "alice", "example.com", "secret"))
	require.ErrorIs(t, p.CreateUser(ctx, "alice", "example.com", "other"), ErrUserExists)

	ok, err = p.UserExists(ctx, "alice", "example.com")
	require.NoError(t, err)
	require.True(t, ok)

	pw, err := p.GetPassword(ctx, "alice", "example.com")
	require.NoError(t, err)
	require.Equal(t, "secret", pw)

	match, err := p.CheckPassword(ctx, "alice", "example.com", "secret")
	require.NoError(t, err)
	require.True(t, match)

	match, err = p.CheckPassword(ctx, "alice", "example.com", "wrong")
	require.NoError(t, err)
	require.False(t, match)
}

func TestMapProviderSetAndDeleteUser(t *testing.T) {
	p := NewMapProvider("example.com", map[string]string{"alice": "secret"})
	ctx := context.Background()

	require.NoError(t, p.SetPassword(ctx, "alice", "example.com", "newsecret"))
	pw, err := p.GetPassword(ctx, "alice", "example.com")
	require.NoError(t, err)
	require.Equal(t, "newsecret", pw)

	require.ErrorIs(t, p.SetPassword(ctx, "bob", "example.com", "x"), ErrNoSuchUser)

	require.NoError(t, p.DeleteUser(ctx, "alice", "example.com"))
	_, err = p.GetPassword(ctx, "alice", "example.com")
	require.ErrorIs(t, err, ErrNoSuchUser)
}

func TestSXCredentialsAdapterDelegatesToProvider(t *testing.T) {
	p := NewMapProvider("example.com", map[string]string{"alice": "secret"})
	creds := &sxCredentials{realm: "example.com", provider: p}
	ctx := context.Background()

	require.Equal(t, "example.com", creds.Realm("anything"))

	pw, err := creds.Password(ctx, "example.com", "alice")
	require.NoError(t, err)
	require.Equal(t, "secret", pw)

	require.True(t, creds.CheckAuthzid(ctx, "example.com", ""))
	require.False(t, creds.CheckAuthzid(ctx, "example.com", "someone-else"))
}
