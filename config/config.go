// Package config implements spec.md §6's configuration model: a flat
// map from string keys to string values, the same shape zenoh-pico's
// z_properties_t uses. Grounded on the teacher's config.go, which
// loaded a TOML file into a typed struct via pelletier/go-toml; this
// keeps that loader but targets an open string-keyed map instead of
// one struct per account, since spec.md's recognized keys (mode,
// connect/endpoint, tls/*, ...) are an open, extensible set rather
// than a fixed schema.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml"
)

// Recognized configuration keys, per spec.md §6.
const (
	KeyMode = "mode"

	KeyConnectEndpoint = "connect/endpoint"
	KeyListenEndpoint  = "listen/endpoint"

	KeyScoutingMulticastEnabled   = "scouting/multicast/enabled"
	KeyScoutingMulticastAddress   = "scouting/multicast/address"
	KeyScoutingMulticastInterface = "scouting/multicast/interface"
	KeyScoutingTimeout            = "scouting/timeout"

	KeyTransportTxLease         = "transport/link/tx/lease"
	KeyTransportTxKeepAlive     = "transport/link/tx/keep_alive"
	KeyTransportRxBufferSize    = "transport/link/rx/buffer_size"
	KeyTransportMaxListenConns  = "transport/link/listen/max_connections"

	KeyTLSRootCA              = "tls/root_ca_certificate"
	KeyTLSRootCABase64        = "tls/root_ca_certificate_base64"
	KeyTLSListenPrivateKey    = "tls/listen_private_key"
	KeyTLSListenPrivateKeyB64 = "tls/listen_private_key_base64"
	KeyTLSListenCertificate   = "tls/listen_certificate"
	KeyTLSListenCertificateB64 = "tls/listen_certificate_base64"
	KeyTLSConnectPrivateKey    = "tls/connect_private_key"
	KeyTLSConnectPrivateKeyB64 = "tls/connect_private_key_base64"
	KeyTLSConnectCertificate   = "tls/connect_certificate"
	KeyTLSConnectCertificateB64 = "tls/connect_certificate_base64"
	KeyTLSEnableMTLS            = "tls/enable_mtls"
	KeyTLSVerifyNameOnConnect   = "tls/verify_name_on_connect"
)

// Recognized values for KeyMode.
const (
	ModeClient = "client"
	ModePeer   = "peer"
)

// listSeparator joins/splits multi-valued keys (connect/endpoint,
// listen/endpoint) within a single flat string value.
const listSeparator = ","

// Config is a concurrency-safe flat string-keyed property bag.
type Config struct {
	mu sync.RWMutex
	m  map[string]string
}

// New creates an empty Config.
func New() *Config {
	return &Config{m: make(map[string]string)}
}

// FromFile loads a TOML document whose top-level keys are spec.md §6
// configuration keys (quoted, since they contain "/") mapping to
// string values, e.g. `"connect/endpoint" = "tcp/10.0.0.1:7447"`.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var flat map[string]string
	if err := toml.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c := New()
	for k, v := range flat {
		c.Set(k, v)
	}
	return c, nil
}

// Get returns the raw string value at key.
func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// GetOr returns the value at key, or def if unset.
func (c *Config) GetOr(key, def string) string {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Set stores value at key, overwriting any previous value.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

// AppendList appends value to a multi-valued key (connect/endpoint,
// listen/endpoint), joining with listSeparator.
func (c *Config) AppendList(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[key]; ok && cur != "" {
		c.m[key] = cur + listSeparator + value
	} else {
		c.m[key] = value
	}
}

// List splits a multi-valued key into its entries.
func (c *Config) List(key string) []string {
	v, ok := c.Get(key)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, listSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Mode returns KeyMode, defaulting to ModeClient per spec.md §4.8
// ("on session open with mode=client ... scout").
func (c *Config) Mode() string { return c.GetOr(KeyMode, ModeClient) }

// ConnectEndpoints returns the configured connect/endpoint locator list.
func (c *Config) ConnectEndpoints() []string { return c.List(KeyConnectEndpoint) }

// ListenEndpoints returns the configured listen/endpoint locator list.
func (c *Config) ListenEndpoints() []string { return c.List(KeyListenEndpoint) }

// Lease returns transport/link/tx/lease as a duration, if set and valid.
func (c *Config) Lease() (time.Duration, bool) { return c.durationMs(KeyTransportTxLease) }

// KeepAlive returns transport/link/tx/keep_alive as a duration, if set
// and valid.
func (c *Config) KeepAlive() (time.Duration, bool) { return c.durationMs(KeyTransportTxKeepAlive) }

// ScoutingTimeout returns scouting/timeout as a duration, if set and valid.
func (c *Config) ScoutingTimeout() (time.Duration, bool) { return c.durationMs(KeyScoutingTimeout) }

func (c *Config) durationMs(key string) (time.Duration, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// RxBufferSize returns transport/link/rx/buffer_size, if set and valid.
func (c *Config) RxBufferSize() (int, bool) {
	v, ok := c.Get(KeyTransportRxBufferSize)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxListenConnections returns transport/link/listen/max_connections,
// per spec.md §4.5 edge case 6 ("a listener configured with
// max_listen_connections=N accepts exactly N peer dials").
func (c *Config) MaxListenConnections() (int, bool) {
	v, ok := c.Get(KeyTransportMaxListenConns)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ScoutingMulticastEnabled returns scouting/multicast/enabled,
// defaulting to true per zenoh-pico's default configuration.
func (c *Config) ScoutingMulticastEnabled() bool {
	v := c.GetOr(KeyScoutingMulticastEnabled, "true")
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// defaultScoutingMulticastAddress is zenoh-pico's default scouting
// group address (224.0.0.224:7446).
const defaultScoutingMulticastAddress = "224.0.0.224:7446"

// ScoutingMulticastAddress returns scouting/multicast/address, falling
// back to zenoh-pico's default scouting group.
func (c *Config) ScoutingMulticastAddress() string {
	return c.GetOr(KeyScoutingMulticastAddress, defaultScoutingMulticastAddress)
}

// ScoutingMulticastInterface returns scouting/multicast/interface, or
// "" if unset (meaning: let the OS pick the outbound interface).
func (c *Config) ScoutingMulticastInterface() string {
	return c.GetOr(KeyScoutingMulticastInterface, "")
}
