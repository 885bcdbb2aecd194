// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package config holds the XML configuration structs
// "Configuration" table describes, shared by the router, C2S, and S2S
// binaries. Loading and defaulting are the extent of this package's
// scope: interpreting a Config into a running process (building TLS
// configs, access lists, and Provider/UserTable values) is each binary's
// own job, the same division router/c2s/s2s already draw between their
// own Config structs and the lower-level types those fields carry.
package config // import "git.sr.ht/~xmppd/xmppd/internal/config"

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"
)

// Config is the root element of a process's XML configuration file.
type Config struct {
	XMLName xml.Name `xml:"config"`

	// ID is this process's own component/domain name.
	ID string `xml:"id"`

	// PIDFile is where this process writes its PID on startup.
	PIDFile string `xml:"pidfile"`

	// DefaultComponent names the bound component that becomes the
	// catch-all default route for the router binary ; normally the S2S gateway's own bound name. Unused by the C2S
	// and S2S binaries.
	DefaultComponent string `xml:"default_component"`

	Router  Router  `xml:"router"`
	Local   Local   `xml:"local"`
	IO      IO      `xml:"io"`
	Authreg Authreg `xml:"authreg"`
	Check   Check   `xml:"check"`

	Security Security `xml:"security"`
	Aliases  Aliases  `xml:"aliases"`

	// Resolver is the "host:port" of the recursive DNS resolver the S2S
	// binary's default in-process SRV resolver queries. Unused by the router and C2S binaries.
	Resolver string `xml:"resolver"`

	MessageLogging MessageLogging `xml:"message_logging"`
}

// Router is the "router.*" key group: the uplink every gateway dials to
// reach the router.
type Router struct {
	IP   string `xml:"ip"`
	Port int    `xml:"port"`
	User string `xml:"user"`
	Pass string `xml:"pass"`

	// Pemfile is the PEM-encoded cert/key pair used if the uplink itself
	// is TLS-protected; empty disables it.
	Pemfile string `xml:"pemfile"`

	Retry Retry `xml:"retry"`
}

// Retry is the "router.retry.*" group governing uplink reconnection
// backoff.
type Retry struct {
	// Init is the number of connection attempts made at startup before
	// giving up.
	Init int `xml:"init"`

	// Lost is the number of reconnection attempts made after an
	// established uplink drops, before the process exits.
	Lost int `xml:"lost"`

	// Sleep is the base backoff delay between reconnection attempts.
	Sleep Duration `xml:"sleep"`
}

// Local is the "local.*" key group: the gateway's own client/peer-facing
// listener.
type Local struct {
	IP      string `xml:"ip"`
	Port    int    `xml:"port"`
	Pemfile string `xml:"pemfile"`
	Cachain string `xml:"cachain"`

	// SSLPort, if non-zero, additionally listens for implicit TLS
	// (legacy "jabbers"/direct-TLS) on top of the STARTTLS-negotiated
	// port above.
	SSLPort int `xml:"ssl-port"`

	RequireStartTLS bool `xml:"require-starttls"`

	// ID is this listener's own domain, optionally qualified as
	// "id@realm" form; see SplitIDRealm.
	ID string `xml:"id"`
}

// SplitIDRealm splits an "id[@realm]" value the way Local.ID and
// Authreg's per-realm sections use that same form. If no "@" is
// present, realm is returned equal to id.
func SplitIDRealm(s string) (id, realm string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '@' {
			return s[:i], s[i+1:]
		}
	}
	return s, s
}

// IO is the "io.*" key group: connection admission and resource limits
//.
type IO struct {
	MaxFDs int `xml:"max_fds"`

	Check IOCheck `xml:"check"`

	// MaxStanzaSize is the largest stanza this gateway accepts.
	MaxStanzaSize StanzaSize `xml:"max_stanza_size"`

	Limits IOLimits `xml:"limits"`
	Access Access   `xml:"access"`
}

// StanzaSize is a size value carrying its own unit scale ("b", "kb",
// "mb"), the "@scale" attribute on the max_stanza_size key.
type StanzaSize struct {
	Value int64  `xml:",chardata"`
	Scale string `xml:"scale,attr"`
}

// IOCheck is the "io.check.*" group governing the client-facing
// reaper sweep.
type IOCheck struct {
	Interval  Duration `xml:"interval"`
	Idle      Duration `xml:"idle"`
	Keepalive Duration `xml:"keepalive"`
}

// IOLimits is the "io.limits.*" group: a token-bucket admission limit
// over a rolling window, optionally throttled rather than rejected
// outright.
type IOLimits struct {
	Bytes    int64    `xml:"bytes"`
	Connects int64    `xml:"connects"`
	Seconds  int      `xml:"seconds,attr"`
	Throttle Duration `xml:"throttle,attr"`
}

// Access is the "io.access.*" group: the order/allow/deny access list
// gating inbound connections.
type Access struct {
	Order string   `xml:"order"`
	Allow []string `xml:"allow"`
	Deny  []string `xml:"deny"`
}

// Authreg is the "authreg.*" group: which Provider backend to load and
// how registration/mechanism negotiation is configured. The
// provider implementation itself is out of scope ; this
// struct only carries enough to select and parameterize one.
type Authreg struct {
	Module string `xml:"module"`

	Mechanisms AuthMechanisms `xml:"mechanisms"`
	Register   Register       `xml:"register"`
}

// AuthMechanisms lists which legacy ("traditional") and SASL mechanisms
// a Provider-backed gateway offers.
type AuthMechanisms struct {
	Traditional []string `xml:"traditional>mechanism"`
	SASL        []string `xml:"sasl>mechanism"`
}

// Register is the "authreg.register.*" group: in-band registration
// policy.
type Register struct {
	Enable       bool `xml:"enable"`
	AllowUnbound bool `xml:"allow-unbound"`
}

// Check is the "check.*" group: the S2S gateway's reaper thresholds
//.
type Check struct {
	Interval  Duration `xml:"interval"`
	Queue     Duration `xml:"queue"`
	Keepalive Duration `xml:"keepalive"`
	Idle      Duration `xml:"idle"`
}

// Security is the "security.*" group: S2S TLS/whitelist policy
//.
type Security struct {
	RequireTLS      bool     `xml:"require_tls"`
	EnableWhitelist bool     `xml:"enable_whitelist"`
	WhitelistDomain []string `xml:"whitelist_domain"`
}

// Aliases is the "aliases.alias[@name,@target]" group: router aliases
//.
type Aliases struct {
	Alias []Alias `xml:"alias"`
}

// Alias is a single "name -> target" router alias entry.
type Alias struct {
	Name   string `xml:"name,attr"`
	Target string `xml:"target,attr"`
}

// MessageLogging is the "message_logging_*" group: the router's rolling
// message log, mirrored onto
// router.MessageLogConfig by the router binary.
type MessageLogging struct {
	Enable        bool     `xml:"enable"`
	Path          string   `xml:"path"`
	MaxBytes      int64    `xml:"max_bytes"`
	MaxAge        Duration `xml:"max_age"`
	Gzip          bool     `xml:"gzip"`
	GroupChat     bool     `xml:"group_chat"`
	FilterMUCFrom []string `xml:"filter_muc_from>domain"`
}

// Duration wraps time.Duration so config files can spell intervals as
// plain Go duration strings ("30s", "5m") via encoding/xml's text
// unmarshaling, the same convenience typed duration fields get for free
// over raw integers.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load reads and parses the XML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := xml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in the handful of fields every deployment needs a
// sane value for even when the config file omits them (non-zero reap
// intervals, uplink retry counts and backoff, and the resolver address)
// rather than leaving a zero Duration to silently disable a sweep the
// operator only forgot to configure.
func (c *Config) applyDefaults() {
	if c.Check.Interval == 0 {
		c.Check.Interval = Duration(10 * time.Second)
	}
	if c.Check.Queue == 0 {
		c.Check.Queue = Duration(60 * time.Second)
	}
	if c.Check.Keepalive == 0 {
		c.Check.Keepalive = Duration(55 * time.Second)
	}
	if c.Check.Idle == 0 {
		c.Check.Idle = Duration(10 * time.Minute)
	}
	if c.IO.Check.Interval == 0 {
		c.IO.Check.Interval = c.Check.Interval
	}
	if c.IO.Check.Keepalive == 0 {
		c.IO.Check.Keepalive = c.Check.Keepalive
	}
	if c.IO.Check.Idle == 0 {
		c.IO.Check.Idle = c.Check.Idle
	}
	if c.Router.Retry.Sleep == 0 {
		c.Router.Retry.Sleep = Duration(5 * time.Second)
	}
	if c.Router.Retry.Init == 0 {
		c.Router.Retry.Init = 3
	}
	if c.Router.Retry.Lost == 0 {
		c.Router.Retry.Lost = 10
	}
	if c.Resolver == "" {
		c.Resolver = "127.0.0.1:53"
	}
}
