package truelayer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// CallbackPath is where the consent redirect lands.
const CallbackPath = "/callback"

// WaitForCode serves the OAuth redirect on ln until a request with a matching
// state delivers an authorization code, the provider reports an error, or ctx
// ends. When tlsConfig is nil the listener serves plain HTTP.
func WaitForCode(ctx context.Context, ln net.Listener, tlsConfig *tls.Config, state string) (string, error) {
	type result struct {
		err  error
		code string
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
			deliver(result{err: fmt.Errorf("%w: %s", ErrConsentRequired, e)})
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprintln(w, "Connected to spendlens. You can close this window.")
		deliver(result{code: code})
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case r := <-results:
		return r.code, r.err
	case err := <-serveErr:
		return "", fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
