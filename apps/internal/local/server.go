// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package local contains a local HTTP server used as the redirect target of a system browser
// authorization. AAD returns id_token and code in the URL fragment, which a browser never sends
// to a server, so the redirect page relays its own location back to the listener.
package local

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// relayPrefix starts the path the redirect page posts its location to. The rest of the path is
// random per server so that other pages in the browser cannot post a crafted redirect.
const relayPrefix = "/relay/"

var relayPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Completing Authentication</title>
</head>
<body>
    <p>Completing authentication...</p>
    <script>
        fetch("{{.RelayPath}}", { method: "POST", body: window.location.href })
            .then(function (r) { return r.text(); })
            .then(function (t) { document.open(); document.write(t); document.close(); });
    </script>
</body>
</html>
`)

var okPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Complete</title>
</head>
<body>
    <p>Authentication complete. You can return to Batch Explorer. Feel free to close this browser tab.</p>
</body>
</html>
`)

var failPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Failed</title>
</head>
<body>
	<p>Authentication failed. You can return to Batch Explorer. Feel free to close this browser tab.</p>
	<p>Error details: error {{.Code}}, error description: {{.Err}}</p>
</body>
</html>
`)

var (
	// code is the html template variable name for the AAD error code.
	code = []byte("{{.Code}}")
	// err is the html template variable name for the AAD error description.
	err = []byte("{{.Err}}")
	// relayPathVar is the html template variable name for the relay path.
	relayPathVar = []byte("{{.RelayPath}}")
)

// Result is the result from the redirect.
type Result struct {
	// URL is the full redirect URL, fragment included.
	URL string
	// Err is set if the server failed before a redirect arrived.
	Err error
}

// Server is an HTTP server.
type Server struct {
	// Addr is the address the server is listening on.
	Addr        string
	port        string
	relayPath   string
	resultCh    chan Result
	s           *http.Server
	successPage []byte
	errorPage   []byte
}

// New creates a local HTTP server and starts it. A port of 0 picks a free port.
func New(port int, successPage []byte, errorPage []byte) (*Server, error) {
	var l net.Listener
	var err error
	var portStr string
	if port > 0 {
		l, err = net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		portStr = strconv.FormatInt(int64(port), 10)
	} else {
		// find a free port
		for i := 0; i < 10; i++ {
			l, err = net.Listen("tcp", "localhost:0")
			if err != nil {
				continue
			}
			addr := l.Addr().String()
			portStr = addr[strings.LastIndex(addr, ":")+1:]
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if len(successPage) == 0 {
		successPage = okPage
	}
	if len(errorPage) == 0 {
		errorPage = failPage
	}

	serv := &Server{
		Addr:        fmt.Sprintf("http://localhost:%s", portStr),
		port:        portStr,
		relayPath:   relayPrefix + uuid.NewString(),
		s:           &http.Server{Addr: "localhost:0", ReadHeaderTimeout: time.Second},
		resultCh:    make(chan Result, 1),
		successPage: successPage,
		errorPage:   errorPage,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(serv.relayPath, serv.relay)
	mux.HandleFunc("/", serv.handler)
	serv.s.Handler = mux

	serv.start(l)
	return serv, nil
}

func (s *Server) start(l net.Listener) {
	go func() {
		err := s.s.Serve(l)
		if err != nil && err != http.ErrServerClosed {
			s.putResult(Result{Err: err})
		}
	}()
}

// Result gets the result of the redirect operation. Only the first redirect is reported.
// ctx deadline will be honored.
func (s *Server) Result(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case r := <-s.resultCh:
		return r
	}
}

// RelayURL is where the redirect page posts its location.
func (s *Server) RelayURL() string {
	return s.Addr + s.relayPath
}

// Results exposes the channel that receives the redirect result.
func (s *Server) Results() <-chan Result {
	return s.resultCh
}

// Shutdown shuts down the server.
func (s *Server) Shutdown() {
	// Note: You might get clever and think you can do this in handler() as a defer, you can't.
	_ = s.s.Shutdown(context.Background())
}

func (s *Server) putResult(r Result) {
	select {
	case s.resultCh <- r:
	default:
	}
}

// handler serves the redirect page. Errors AAD sends in the query string are reported
// directly, as a fragment, so callers only ever parse one format.
func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" {
		s.writeOutcome(w, q)
		s.putResult(Result{URL: s.Addr + r.URL.Path + "#" + r.URL.RawQuery})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(bytes.ReplaceAll(relayPage, relayPathVar, []byte(s.relayPath)))
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.sameOrigin(r) {
		http.Error(w, "cross origin relay", http.StatusForbidden)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := url.Parse(strings.TrimSpace(string(b)))
	if err != nil || !isLoopback(u.Hostname()) {
		http.Error(w, "relayed location is not a loopback redirect", http.StatusBadRequest)
		return
	}

	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeOutcome(w, fragment)
	s.putResult(Result{URL: u.String()})
}

func (s *Server) writeOutcome(w http.ResponseWriter, v url.Values) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	headerErr := v.Get("error")
	if headerErr == "" {
		_, _ = w.Write(s.successPage)
		return
	}
	escapedErrDesc := html.EscapeString(v.Get("error_description")) // provides XSS protection
	escapedHeaderErr := html.EscapeString(headerErr)                // provides XSS protection

	errorPage := bytes.ReplaceAll(s.errorPage, code, []byte(escapedHeaderErr))
	errorPage = bytes.ReplaceAll(errorPage, err, []byte(escapedErrDesc))
	_, _ = w.Write(errorPage)
}

// sameOrigin rejects requests the browser marks as coming from another site. Clients that
// send neither header are not browser pages and are let through.
func (s *Server) sameOrigin(r *http.Request) bool {
	if site := r.Header.Get("Sec-Fetch-Site"); site != "" && site != "same-origin" {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Scheme == "http" && isLoopback(u.Hostname()) && u.Port() == s.port
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
