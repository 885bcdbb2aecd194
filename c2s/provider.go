// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package c2s implements the client-to-server gateway described in
// it accepts client connections, drives each through
// STARTTLS/SASL/resource-bind negotiation, tracks bound sessions, and
// forwards application stanzas to and from the router over the
// component protocol router/bind.go speaks.
package c2s // import "git.sr.ht/~xmppd/xmppd/c2s"

import (
	"context"
	"errors"
)

// Provider is the Auth/Registration Provider interface:
// a concrete LDAP/SQL/file-backed implementation is out of scope, but
// every mechanism the gateway offers is defined purely in terms of this
// interface so that one can be dropped in without touching negotiation
// or session-management code.
type Provider interface {
	// UserExists reports whether user exists in realm.
	UserExists(ctx context.Context, user, realm string) (bool, error)

	// GetPassword returns user's plaintext password in realm. Required by
	// mechanisms that need the secret itself rather than a submitted
	// candidate to check, such as DIGEST-MD5.
	GetPassword(ctx context.Context, user, realm string) (string, error)

	// CheckPassword reports whether candidate is user's correct password
	// in realm, for providers that can check without exposing the secret.
	CheckPassword(ctx context.Context, user, realm, candidate string) (bool, error)

	// SetPassword changes the password of an existing user in realm.
	SetPassword(ctx context.Context, user, realm, newPassword string) error

	// CreateUser provisions user in realm with an initial password, used
	// by in-band registration.
	CreateUser(ctx context.Context, user, realm, password string) error

	// DeleteUser removes user from realm.
	DeleteUser(ctx context.Context, user, realm string) error

	// Free releases any resources the provider holds (connection pools,
	// file handles) when the gateway shuts down.
	Free() error
}

// ErrNoSuchUser is returned by a Provider's GetPassword/CheckPassword
// methods when the named user does not exist.
var ErrNoSuchUser = errors.New("c2s: no such user")

// ErrUserExists is returned by CreateUser when the named user is already
// provisioned.
var ErrUserExists = errors.New("c2s: user already exists")

// MapProvider is an in-memory Provider backed by a plaintext-password
// map, standing in for the LDAP/SQL/file providers a real deployment
// out of scope. It exists so the gateway has something concrete to run
// against in tests and small deployments.
type MapProvider struct {
	Realm string
	users map[string]string
}

// NewMapProvider returns a MapProvider seeded with users (username ->
// plaintext password) for realm.
func NewMapProvider(realm string, users map[string]string) *MapProvider {
	m := make(map[string]string, len(users))
	for k, v := range users {
		m[k] = v
	}
	return &MapProvider{Realm: realm, users: m}
}

// UserExists implements Provider.
func (p *MapProvider) UserExists(_ context.Context, user, _ string) (bool, error) {
	_, ok := p.users[user]
	return ok, nil
}

// GetPassword implements Provider.
func (p *MapProvider) GetPassword(_ context.Context, user, _ string) (string, error) {
	pw, ok := p.users[user]
	if !ok {
		return "", ErrNoSuchUser
	}
	return pw, nil
}

// CheckPassword implements Provider.
func (p *MapProvider) CheckPassword(ctx context.Context, user, realm, candidate string) (bool, error) {
	pw, err := p.GetPassword(ctx, user, realm)
	if err != nil {
		return false, err
	}
	return pw == candidate, nil
}

// SetPassword implements Provider.
func (p *MapProvider) SetPassword(_ context.Context, user, _, newPassword string) error {
	if _, ok := p.users[user]; !ok {
		return ErrNoSuchUser
	}
	p.users[user] = newPassword
	return nil
}

// CreateUser implements Provider.
func (p *MapProvider) CreateUser(_ context.Context, user, _, password string) error {
	if _, ok := p.users[user]; ok {
		return ErrUserExists
	}
	p.users[user] = password
	return nil
}

// DeleteUser implements Provider.
func (p *MapProvider) DeleteUser(_ context.Context, user, _ string) error {
	if _, ok := p.users[user]; !ok {
		return ErrNoSuchUser
	}
	delete(p.users, user)
	return nil
}

// Free implements Provider; MapProvider holds nothing that needs release.
func (p *MapProvider) Free() error { return nil }

// sxCredentials adapts a Provider to sx.Credentials so the SASL plugin
// can authenticate against it without sx importing this package
// (mirrors router/bind.go's UserTable adapter).
type sxCredentials struct {
	realm    string
	provider Provider
}

// Realm implements sx.Credentials.
func (c *sxCredentials) Realm(string) string { return c.realm }

// Password implements sx.Credentials: DIGEST-MD5 needs the plaintext
// secret itself, so this only ever calls GetPassword.
func (c *sxCredentials) Password(ctx context.Context, _, user string) (string, error) {
	return c.provider.GetPassword(ctx, user, c.realm)
}

// CheckAuthzid implements sx.Credentials: a client may only act as
// itself, never request an authorization identity for another user.
func (c *sxCredentials) CheckAuthzid(_ context.Context, _, authzid string) bool {
	return authzid == ""
}
