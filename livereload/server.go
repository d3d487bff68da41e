// Package livereload serves a development proxy in front of WordPress and
// tells connected browsers to reload when theme assets change.
package livereload

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/sjson"
)

const (
	// EventsPath streams reload events to browsers.
	EventsPath = "/__livereload"
	// ScriptPath serves the browser client.
	ScriptPath = "/__livereload.js"
)

var (
	// ErrInvalidProxy is returned for proxy targets that are not absolute URLs.
	ErrInvalidProxy = errors.New("invalid proxy target")
	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("server already started")
)

//go:embed client.js
var clientScript []byte

// Options configures a Server.
type Options struct {
	// Listen is the address to bind, e.g. ":3000".
	Listen string
	// Proxy is the URL of the site to front, e.g. "http://localhost:8888/".
	Proxy string
	// Logger receives server events. Nothing is logged when nil.
	Logger *slog.Logger
}

// Server is a reverse proxy that injects the live-reload client into HTML
// pages and pushes reload events to it.
type Server struct {
	target  *url.URL
	listen  string
	logger  *slog.Logger
	hub     *hub
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New creates a server. It does not listen until Start.
func New(opts Options) (*Server, error) {
	target, err := url.Parse(opts.Proxy)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, opts.Proxy)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		target: target,
		listen: opts.Listen,
		logger: logger,
		hub:    newHub(),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(EventsPath, s.serveEvents)
	r.Get(ScriptPath, s.serveScript)
	r.Handle("/*", s.proxy())
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background until ctx is
// cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	s.logger.Info("serving", "addr", ln.Addr().String(), "proxy", s.target.String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close disconnects all browsers and stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	s.hub.closeAll()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Reload asks every connected browser to reload the page.
func (s *Server) Reload() {
	msg, _ := sjson.SetBytes([]byte(`{}`), "type", "reload")
	n := s.hub.broadcast(msg)
	s.logger.Info("reload", "clients", n)
}

// Inject asks browsers to hot-swap the given stylesheets. Browsers without
// a matching stylesheet reload instead.
func (s *Server) Inject(paths ...string) {
	msg, _ := sjson.SetBytes([]byte(`{}`), "type", "inject")
	msg, _ = sjson.SetBytes(msg, "paths", paths)
	n := s.hub.broadcast(msg)
	s.logger.Info("inject", "files", len(paths), "clients", n)
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	return s.hub.len()
}

func (s *Server) serveScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(clientScript)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id, ch := s.hub.subscribe()
	defer s.hub.unsubscribe(id)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	fmt.Fprintf(w, "retry: 1000\nevent: hello\ndata: %s\n\n", id)
	flusher.Flush()
	s.logger.Debug("client connected", "id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("client disconnected", "id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) proxy() http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(s.target)
			r.SetXForwarded()
			// Without a caller-set Accept-Encoding the transport negotiates
			// gzip itself and hands back decompressed bodies, which can then
			// be rewritten. Browsers also send br, which it cannot decode.
			r.Out.Header.Del("Accept-Encoding")
		},
		ModifyResponse: s.rewriteResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("proxy failed", "url", r.URL.String(), "err", err)
			http.Error(w, "cannot reach "+s.target.String(), http.StatusBadGateway)
		},
	}
}

// rewriteResponse points absolute links and redirects at the proxy and
// injects the client into HTML pages.
func (s *Server) rewriteResponse(resp *http.Response) error {
	host := resp.Request.Header.Get("X-Forwarded-Host")
	if host == "" {
		return nil
	}
	origin := "//" + s.target.Host
	proxied := "//" + host

	if loc := resp.Header.Get("Location"); loc != "" {
		resp.Header.Set("Location", strings.Replace(loc, origin, proxied, 1))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	body = bytes.ReplaceAll(body, []byte(origin), []byte(proxied))
	body = injectScript(body, ScriptPath)

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}
