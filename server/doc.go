// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// The server package is used to manage C2S and S2S connections to your XMPP
// server. It provides a higher level API for accepting and negotiating
// sessions (without digging down into the nitty gritty XML details).
package server // import "greenmantle.im/xmppd/server"
