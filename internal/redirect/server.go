// Package redirect captures the OAuth2 authorization-code redirect on a
// loopback address registered as the application's redirect URI.
package redirect

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quasar/mcauth/internal/core"
)

const (
	// DefaultAddr must match the redirect URI registered for the client id.
	DefaultAddr = "127.0.0.1:25585"

	// followUpWait bounds how long we wait for the browser to follow the
	// code-hiding redirect before giving up on showing it a result page.
	followUpWait = 250 * time.Millisecond

	hiddenCode = "hidden"
)

// ErrorKind classifies why capturing the redirect failed.
type ErrorKind int

const (
	KindStartServer ErrorKind = iota
	// KindServerside means the identity provider redirected with an error.
	KindServerside
	KindCsrfMismatch
	KindMissingCode
	KindCancelledByUser
)

type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStartServer:
		return fmt.Sprintf("unable to start http server: %v", e.Err)
	case KindServerside:
		return e.Detail
	case KindCsrfMismatch:
		return "the csrf token in the request didn't match the response"
	case KindMissingCode:
		return "the response didn't include the code"
	default:
		return "cancelled by user"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// RedirectURL returns the redirect URI served by a listener on addr.
func RedirectURL(addr string) string {
	return "http://" + addr
}

// exchange is one browser request handed from the HTTP handler to Wait,
// which answers it and then closes done.
type exchange struct {
	w    http.ResponseWriter
	r    *http.Request
	done chan struct{}
}

// Server is a bound loopback listener waiting for a single redirect.
type Server struct {
	logger    *slog.Logger
	ln        net.Listener
	srv       *http.Server
	requests  chan *exchange
	closing   chan struct{}
	serveDone chan struct{}
	closeOnce sync.Once

	// final is the page Wait answered with. Requests still parked when the
	// server closes get it too, so a browser that follows the code-hiding
	// redirect late sees the real outcome. Written before closing is closed.
	final *pageData
}

// Listen binds addr and starts accepting requests. Bind failures are
// reported as KindStartServer.
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &Error{Kind: KindStartServer, Err: err}
	}

	s := &Server{
		logger:    logger,
		ln:        ln,
		requests:  make(chan *exchange),
		closing:   make(chan struct{}),
		serveDone: make(chan struct{}),
	}
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(s.serveDone)
		_ = s.srv.Serve(ln)
	}()

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// ServeHTTP hands redirect requests to Wait and blocks until Wait has
// answered them.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ex := &exchange{w: w, r: r, done: make(chan struct{})}
	select {
	case s.requests <- ex:
	case <-s.closing:
		if s.final != nil {
			renderPage(w, s.final.Headline, s.final.Detail, s.final.Error)
			return
		}
		http.Error(w, "no sign-in is in progress", http.StatusGone)
		return
	case <-r.Context().Done():
		return
	}
	<-ex.done
}

// Wait blocks until the browser delivers the redirect for pending or ctx
// is cancelled. A redirect whose state differs from pending's CSRF token
// never yields a result.
func (s *Server) Wait(ctx context.Context, pending core.PendingAuthorization) (*core.FinishedAuthorization, error) {
	var ex *exchange
	select {
	case <-ctx.Done():
		return nil, &Error{Kind: KindCancelledByUser, Err: ctx.Err()}
	case ex = <-s.requests:
	}

	var (
		errCode, errDescription, code, state string
		hasError, hasCode, hasState          bool
	)
	for key, values := range ex.r.URL.Query() {
		value := ""
		if len(values) > 0 {
			value = values[0]
		}
		switch key {
		case "error":
			errCode, hasError = value, true
		case "error_description":
			errDescription = value
		case "code":
			code, hasCode = value, true
		case "state":
			state, hasState = value, true
		default:
			s.logger.Warn("unknown redirect parameter", "key", key, "value", value)
		}
	}

	target := ex
	if hasCode {
		// Bounce the browser to the same URL minus the code so it never
		// lands in history, then answer the follow-up with the result page.
		hidden := *ex.r.URL
		q := hidden.Query()
		q.Set("code", hiddenCode)
		hidden.RawQuery = q.Encode()
		http.Redirect(ex.w, ex.r, hidden.RequestURI(), http.StatusFound)
		close(ex.done)
		target = s.awaitFollowUp(ctx)
	}

	if hasError {
		headline := "An error occurred: " + errCode
		detail := headline
		if errDescription != "" {
			detail += "\n" + errDescription
		}
		s.respond(target, headline, errDescription, true)
		return nil, &Error{Kind: KindServerside, Detail: detail}
	}

	if !hasState || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending.CSRFToken)) != 1 {
		s.respond(target, "Error: CSRF Mismatch!", "Did you reload the tab instead of going through the proper authorization flow?", true)
		return nil, &Error{Kind: KindCsrfMismatch}
	}

	if !hasCode || code == "" {
		s.respond(target, "Error", "Missing required 'code' parameter", true)
		return nil, &Error{Kind: KindMissingCode}
	}

	s.respond(target, "Authorization complete", "You may now close this window", false)
	return &core.FinishedAuthorization{Pending: pending, Code: code}, nil
}

func (s *Server) awaitFollowUp(ctx context.Context) *exchange {
	timer := time.NewTimer(followUpWait)
	defer timer.Stop()
	select {
	case ex := <-s.requests:
		return ex
	case <-timer.C:
		s.logger.Debug("browser did not follow the redirect")
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *Server) respond(ex *exchange, headline, detail string, isError bool) {
	s.final = &pageData{Headline: headline, Detail: detail, Error: isError}
	if ex == nil {
		return
	}
	renderPage(ex.w, headline, detail, isError)
	close(ex.done)
}

// Close stops the listener and waits for in-flight requests to finish.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err = s.srv.Shutdown(ctx); err != nil {
			err = s.srv.Close()
		}
		<-s.serveDone
	})
	return err
}

// StartServer binds addr, waits for one redirect and shuts down again.
// It blocks; run it on its own goroutine when the caller must stay responsive.
func StartServer(ctx context.Context, addr string, pending core.PendingAuthorization, logger *slog.Logger) (*core.FinishedAuthorization, error) {
	s, err := Listen(addr, logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Wait(ctx, pending)
}
