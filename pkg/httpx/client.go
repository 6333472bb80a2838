package httpx

import (
	"fmt"
	"net/http"
	"time"

	decidertls "github.com/alexoch/PoseidonML/pkg/tls"
)

// NewClient returns an HTTP client that presents the client certificate of
// cfg when cfg is enabled.
func NewClient(cfg decidertls.Config, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 5 * time.Second

	if cfg.Enabled {
		tlsConfig, err := cfg.Client()
		if err != nil {
			return nil, fmt.Errorf("http client tls: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
