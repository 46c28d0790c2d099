package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// LoopbackConsent asks the user to open the consent page and receives the
// authorization code on a local redirect listener bound to 127.0.0.1:port.
// A port of 0 picks a free one. The URL is written to w.
func LoopbackConsent(port int, w io.Writer) ConsentFunc {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, fmt.Errorf("listen for redirect: %w", err)
		}
		defer ln.Close()

		c := *cfg
		c.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

		state, err := randomState()
		if err != nil {
			return nil, err
		}
		verifier := oauth2.GenerateVerifier()

		type result struct {
			code string
			err  error
		}
		results := make(chan result, 1)

		srv := &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
			Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				var res result
				switch {
				case q.Get("state") != state:
					res.err = errors.New("state mismatch")
				case q.Get("error") != "":
					res.err = fmt.Errorf("consent denied: %s", q.Get("error"))
				case q.Get("code") == "":
					res.err = errors.New("missing authorization code")
				default:
					res.code = q.Get("code")
				}
				if res.err != nil {
					http.Error(rw, res.err.Error(), http.StatusBadRequest)
				} else {
					fmt.Fprintln(rw, "Login complete, you can close this window.")
				}
				select {
				case results <- res:
				default:
				}
			}),
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("redirect listener failed", "error", err)
			}
		}()
		defer srv.Close()

		authURL := c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oauth2.S256ChallengeOption(verifier))
		fmt.Fprintf(w, "Open the following URL in a browser to grant access:\n\n%s\n\n", authURL)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-results:
			if res.err != nil {
				return nil, res.err
			}
			return c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		}
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
