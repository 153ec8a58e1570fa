// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package config loads the settings a server process needs to stand up the
// listeners in package server: the server's own domain, TLS material, the
// SASL mechanisms it is willing to offer, BOSH timing parameters (XEP-0124),
// and whether S2S dialback is enabled and with what shared secret.
//
// Values are read from command-line flags with environment-variable
// defaults (the XMPPD_-prefixed names below), using only the standard flag
// and os packages.
package config // import "greenmantle.im/xmppd/config"

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"greenmantle.im/xmppd/internal"
)

// Environment variable names, overridden by their matching flag when set.
const (
	envDomain      = "XMPPD_SERVER_DOMAIN"
	envCertFile    = "XMPPD_TLS_CERTIFICATE_FILE"
	envKeyFile     = "XMPPD_TLS_KEY_FILE"
	envTLSRequired = "XMPPD_TLS_REQUIRED"
	envMechanisms  = "XMPPD_SASL_MECHANISMS"
	envBOSHWaitMax = "XMPPD_BOSH_WAIT_MAX"
	envBOSHHold    = "XMPPD_BOSH_HOLD"
	envBOSHPolling = "XMPPD_BOSH_POLLING"
	envBOSHInact   = "XMPPD_BOSH_INACTIVITY"
	envS2SEnabled  = "XMPPD_S2S_ENABLED"
	envS2SSecret   = "XMPPD_S2S_SECRET"
)

// BOSH holds the XEP-0124 connection manager timing parameters.
type BOSH struct {
	WaitMax    time.Duration
	Hold       int
	Polling    time.Duration
	Inactivity time.Duration
}

// Config is the fully resolved server configuration, populated by Load.
type Config struct {
	// ServerDomain is this server's own domain part, eg. "example.com".
	ServerDomain string

	// CertFile and KeyFile locate the TLS certificate chain and private key
	// used by the c2s and s2s listeners. Both must be set (or both left
	// empty, to serve without TLS) together.
	CertFile string
	KeyFile  string
	// TLSRequired rejects sessions that never negotiate STARTTLS.
	TLSRequired bool

	// SASLMechanisms is the subset of {PLAIN, DIGEST-MD5, SCRAM-SHA-1} this
	// server is willing to offer, in the order they should be advertised.
	SASLMechanisms []string

	BOSH BOSH

	// S2SEnabled turns on the s2s listener and dialback support.
	S2SEnabled bool
	// S2SSecret is shared with trusted peers for dialback HMAC verification.
	// If S2SEnabled is true and no secret is configured (by flag or by
	// environment), Load generates a random one.
	S2SSecret []byte
}

// TLSConfig builds a *tls.Config from CertFile/KeyFile, or returns nil if
// neither is set.
func (c Config) TLSConfig() (*tls.Config, error) {
	if c.CertFile == "" && c.KeyFile == "" {
		return nil, nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("config: tls.certificate-file and tls.key-file must be set together")
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: loading TLS keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

var validMechanisms = map[string]bool{
	"PLAIN":       true,
	"DIGEST-MD5":  true,
	"SCRAM-SHA-1": true,
}

// Load parses args (normally os.Args[1:]) against a new flag.FlagSet,
// falling back to the XMPPD_-prefixed environment variables named by the
// env* constants above for any flag left unset, and returns the resolved
// Config.
func Load(args []string) (Config, error) {
	var (
		domain      = os.Getenv(envDomain)
		certFile    = os.Getenv(envCertFile)
		keyFile     = os.Getenv(envKeyFile)
		tlsRequired = envBool(envTLSRequired)
		mechanisms  = envOr(envMechanisms, "PLAIN")
		waitMax     = envOr(envBOSHWaitMax, "60")
		hold        = envOr(envBOSHHold, "1")
		polling     = envOr(envBOSHPolling, "15")
		inactivity  = envOr(envBOSHInact, "60")
		s2sEnabled  = envBool(envS2SEnabled)
		s2sSecret   = os.Getenv(envS2SSecret)
	)

	flags := flag.NewFlagSet("xmppd", flag.ContinueOnError)
	flags.StringVar(&domain, "server-domain", domain, "This server's own domain part (required). Overrides $"+envDomain+".")
	flags.StringVar(&certFile, "tls.certificate-file", certFile, "Path to the TLS certificate chain. Overrides $"+envCertFile+".")
	flags.StringVar(&keyFile, "tls.key-file", keyFile, "Path to the TLS private key. Overrides $"+envKeyFile+".")
	flags.BoolVar(&tlsRequired, "tls.required", tlsRequired, "Reject sessions that never negotiate STARTTLS. Overrides $"+envTLSRequired+".")
	flags.StringVar(&mechanisms, "sasl.mechanisms", mechanisms, "Comma separated subset of PLAIN,DIGEST-MD5,SCRAM-SHA-1. Overrides $"+envMechanisms+".")
	flags.StringVar(&waitMax, "bosh.wait-max", waitMax, "Longest time in seconds a BOSH connection manager may hold a request open. Overrides $"+envBOSHWaitMax+".")
	flags.StringVar(&hold, "bosh.hold", hold, "Requests a BOSH connection manager may hold at once. Overrides $"+envBOSHHold+".")
	flags.StringVar(&polling, "bosh.polling", polling, "Shortest allowable polling interval in seconds. Overrides $"+envBOSHPolling+".")
	flags.StringVar(&inactivity, "bosh.inactivity", inactivity, "Longest allowable inactivity period in seconds. Overrides $"+envBOSHInact+".")
	flags.BoolVar(&s2sEnabled, "s2s.enabled", s2sEnabled, "Enable the s2s listener and dialback. Overrides $"+envS2SEnabled+".")
	flags.StringVar(&s2sSecret, "s2s.secret", s2sSecret, "Shared dialback secret; randomly generated if s2s is enabled and this is unset. Overrides $"+envS2SSecret+".")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if domain == "" {
		return Config{}, errors.New("config: server-domain is required")
	}

	holdN, err := strconv.Atoi(hold)
	if err != nil {
		return Config{}, fmt.Errorf("config: bosh.hold: %w", err)
	}
	waitMaxSec, err := strconv.Atoi(waitMax)
	if err != nil {
		return Config{}, fmt.Errorf("config: bosh.wait-max: %w", err)
	}
	pollingSec, err := strconv.Atoi(polling)
	if err != nil {
		return Config{}, fmt.Errorf("config: bosh.polling: %w", err)
	}
	inactivitySec, err := strconv.Atoi(inactivity)
	if err != nil {
		return Config{}, fmt.Errorf("config: bosh.inactivity: %w", err)
	}

	mechs, err := parseMechanisms(mechanisms)
	if err != nil {
		return Config{}, err
	}

	var secret []byte
	switch {
	case s2sSecret != "":
		secret = []byte(s2sSecret)
	case s2sEnabled:
		secret = []byte(internal.RandomID(32))
	}

	return Config{
		ServerDomain:   domain,
		CertFile:       certFile,
		KeyFile:        keyFile,
		TLSRequired:    tlsRequired,
		SASLMechanisms: mechs,
		BOSH: BOSH{
			WaitMax:    time.Duration(waitMaxSec) * time.Second,
			Hold:       holdN,
			Polling:    time.Duration(pollingSec) * time.Second,
			Inactivity: time.Duration(inactivitySec) * time.Second,
		},
		S2SEnabled: s2sEnabled,
		S2SSecret:  secret,
	}, nil
}

func parseMechanisms(s string) ([]string, error) {
	var out []string
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(strings.ToUpper(m))
		if m == "" {
			continue
		}
		if !validMechanisms[m] {
			return nil, fmt.Errorf("config: unknown sasl mechanism %q", m)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.New("config: sasl.mechanisms must name at least one mechanism")
	}
	return out, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}
