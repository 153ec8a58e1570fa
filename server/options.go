// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"crypto/tls"
	"log"
)

// Option's can be used to configure the server.
type Option func(*options)
type options struct {
	clientAddr string // TCP address to listen on, ":5222" if empty.
	s2sAddr    string // TCP address to listen on, ":5269" if empty.
	tlsConfig  *tls.Config
	logger     *log.Logger
}

func getOpts(o ...Option) (res options) {
	res.logger = log.Default()
	for _, f := range o {
		f(&res)
	}
	return
}

// ClientAddr sets the interface and port that the server will listen on for
// inbound connections from XMPP clients (component A/c2s). If unset,
// ":5222" is used.
func ClientAddr(addr string) Option {
	return func(o *options) {
		o.clientAddr = addr
	}
}

// S2SAddr sets the interface and port that the server will listen on for
// inbound connections from other servers (component I/s2s). If unset,
// ":5269" is used.
func S2SAddr(addr string) Option {
	return func(o *options) {
		o.s2sAddr = addr
	}
}

// TLS sets the tls.Config held in the server's options. Accepted
// connections negotiate STARTTLS with the Runtime's TLSConfig; this value is
// not used for them.
func TLS(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// Logger sets the logger used to report per-connection errors. If unset,
// log.Default() is used.
func Logger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// PreferClientCipherSuites prefers the cipher suite order indicated by the
// client (not recommended).
var PreferClientCipherSuites Option = preferClientCipherSuites

var preferClientCipherSuites = func(o *options) {
	if o.tlsConfig == nil {
		o.tlsConfig = &tls.Config{}
	}
	o.tlsConfig.PreferServerCipherSuites = false
}
