package config

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/zenohpico/zenohpico-go/zerr"
)

// tlsPair names a plain-text key and its _base64 counterpart, exactly
// one of which may be set (spec.md §6's tls/* keys, original_source's
// z_tls_config_test.c using the _base64 variants).
type tlsPair struct {
	plain, base64, label string
}

var tlsPairs = []tlsPair{
	{KeyTLSRootCA, KeyTLSRootCABase64, "tls/root_ca_certificate"},
	{KeyTLSListenPrivateKey, KeyTLSListenPrivateKeyB64, "tls/listen_private_key"},
	{KeyTLSListenCertificate, KeyTLSListenCertificateB64, "tls/listen_certificate"},
	{KeyTLSConnectPrivateKey, KeyTLSConnectPrivateKeyB64, "tls/connect_private_key"},
	{KeyTLSConnectCertificate, KeyTLSConnectCertificateB64, "tls/connect_certificate"},
}

// ValidateTLS fails fast on malformed tls/* configuration: the TLS
// link driver itself is out of scope for this core, but a caller that
// sets these keys still gets the same validation zenoh-pico's z_open
// performs before handing them to mbedTLS, rather than a config that
// only breaks once a TLS link driver tries to use it.
func (c *Config) ValidateTLS() error {
	for _, p := range tlsPairs {
		plain, hasPlain := c.Get(p.plain)
		b64, hasB64 := c.Get(p.base64)
		if hasPlain && hasB64 {
			return zerr.New(zerr.KindInvalidArgument, "config: "+p.label+" and "+p.label+"_base64 are mutually exclusive")
		}
		var pemBytes []byte
		switch {
		case hasB64:
			decoded, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return zerr.Wrap(zerr.KindInvalidArgument, "config: "+p.label+"_base64 is not valid base64", err)
			}
			pemBytes = decoded
		case hasPlain:
			pemBytes = []byte(plain)
		default:
			continue
		}
		if err := validatePEMBlock(p.label, pemBytes); err != nil {
			return err
		}
	}

	if v, ok := c.Get(KeyTLSEnableMTLS); ok {
		if _, err := parseBool(v); err != nil {
			return zerr.Wrap(zerr.KindInvalidArgument, "config: tls/enable_mtls is not a valid bool", err)
		}
	}
	if v, ok := c.Get(KeyTLSVerifyNameOnConnect); ok {
		if _, err := parseBool(v); err != nil {
			return zerr.Wrap(zerr.KindInvalidArgument, "config: tls/verify_name_on_connect is not a valid bool", err)
		}
	}
	return nil
}

func validatePEMBlock(label string, b []byte) error {
	block, _ := pem.Decode(b)
	if block == nil {
		return zerr.New(zerr.KindInvalidArgument, "config: "+label+" is not a valid PEM block")
	}
	switch block.Type {
	case "CERTIFICATE":
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return zerr.Wrap(zerr.KindInvalidArgument, "config: "+label+" does not parse as an X.509 certificate", err)
		}
	case "RSA PRIVATE KEY", "EC PRIVATE KEY", "PRIVATE KEY":
		if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return nil
		}
		if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			return nil
		}
		if _, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return nil
		}
		return zerr.New(zerr.KindInvalidArgument, "config: "+label+" does not parse as a private key")
	}
	return nil
}

// parseBool accepts the same spellings strconv.ParseBool does; it
// exists here only to give a config-scoped error type on failure.
func parseBool(v string) (bool, error) {
	switch v {
	case "1", "t", "T", "true", "TRUE", "True":
		return true, nil
	case "0", "f", "F", "false", "FALSE", "False":
		return false, nil
	}
	return false, zerr.New(zerr.KindInvalidArgument, "config: not a bool: "+v)
}
