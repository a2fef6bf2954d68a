// Package providers implements clients for the external 3D generation
// services the bridge can submit jobs to, plus a catalog that maps provider
// names from config onto live clients.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxRedirects       = 3
)

// newHTTPClient returns the client used for provider traffic. Redirects are
// capped and must stay on https so a compromised service cannot bounce the
// bridge onto an arbitrary scheme or loop it.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "https" {
				return errors.New("refusing redirect to non-https URL")
			}
			return nil
		},
	}
}

// httpStatusError normalizes non-2xx responses into one error shape.
func httpStatusError(provider string, resp *http.Response) error {
	return fmt.Errorf("%s returned HTTP %d", provider, resp.StatusCode)
}
