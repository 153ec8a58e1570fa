// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package bosh

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/mux"
	"greenmantle.im/xmppd/ping"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	domain := jid.MustParse("im.example.com")
	m := mux.New(ping.Handle())
	return NewManager(domain, func() []xmpp.StreamFeature {
		return []xmpp.StreamFeature{xmpp.BindResource(xmpp.RandomResource)}
	}, m, WaitMax(2*time.Second), Hold(1))
}

func TestServeHTTPRejectsGET(t *testing.T) {
	m := testManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	m.ServeHTTP(w, r)
	if w.Code != 405 {
		t.Errorf("expected 405 for a GET request, got %d", w.Code)
	}
}

func TestServeHTTPRejectsMalformedBody(t *testing.T) {
	m := testManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader("not xml"))
	m.ServeHTTP(w, r)
	if w.Code != 400 {
		t.Errorf("expected 400 for a malformed body, got %d", w.Code)
	}
}

func TestServeHTTPUnknownSid(t *testing.T) {
	m := testManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`<body xmlns="`+NS+`" sid="bogus" rid="2"/>`))
	m.ServeHTTP(w, r)
	if !strings.Contains(w.Body.String(), "terminate") {
		t.Errorf("expected a terminate response for an unknown sid, got %s", w.Body.String())
	}
}

func TestServeHTTPCreatesSession(t *testing.T) {
	m := testManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(
		`<body xmlns="`+NS+`" to="im.example.com" rid="1" wait="2" hold="1" ver="1.6"/>`,
	))
	m.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `sid="`) {
		t.Errorf("expected the response to carry a sid, got %s", w.Body.String())
	}
	if len(m.sessions) != 1 {
		t.Errorf("expected exactly one tracked session, got %d", len(m.sessions))
	}
}

func TestServeHTTPOutOfOrderRid(t *testing.T) {
	m := testManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(
		`<body xmlns="`+NS+`" to="im.example.com" rid="1" wait="2" hold="1" ver="1.6"/>`,
	))
	m.ServeHTTP(w, r)

	var sid string
	for s := range m.sessions {
		sid = s
	}

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("POST", "/", strings.NewReader(
		`<body xmlns="`+NS+`" sid="`+sid+`" rid="99"/>`,
	))
	m.ServeHTTP(w2, r2)
	if !strings.Contains(w2.Body.String(), "terminate") {
		t.Errorf("expected an out-of-order rid to terminate the session, got %s", w2.Body.String())
	}
}

func TestServeHTTPTerminate(t *testing.T) {
	m := testManager(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(
		`<body xmlns="`+NS+`" to="im.example.com" rid="1" wait="2" hold="1" ver="1.6"/>`,
	))
	m.ServeHTTP(w, r)

	var sid string
	for s := range m.sessions {
		sid = s
	}

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("POST", "/", strings.NewReader(
		`<body xmlns="`+NS+`" sid="`+sid+`" rid="2" type="terminate"/>`,
	))
	m.ServeHTTP(w2, r2)
	if !strings.Contains(w2.Body.String(), "terminate") {
		t.Errorf("expected a terminate response, got %s", w2.Body.String())
	}
	if _, ok := m.sessions[sid]; ok {
		t.Error("expected the session to be removed after termination")
	}
}
