package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// ErrUnsupportedProxy is returned for proxy URIs with an unknown scheme.
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// Transport builds the HTTP client used to reach an endpoint.
type Transport interface {
	// Proxy returns the proxy URI, or "" for a direct connection.
	Proxy() string

	// HTTPClient returns a fresh client routed through this transport.
	HTTPClient() (*http.Client, error)
}

// httpTimeout caps a single HTTP exchange. Resolution and query deadlines
// from the caller's context are usually tighter.
const httpTimeout = 30 * time.Second

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

type directTransport struct{}

// Direct returns a transport that connects without a proxy.
func Direct() Transport {
	return directTransport{}
}

func (directTransport) Proxy() string { return "" }

func (directTransport) HTTPClient() (*http.Client, error) {
	return &http.Client{Transport: newHTTPTransport(), Timeout: httpTimeout}, nil
}

type proxiedTransport struct {
	uri string
}

// Proxied returns a transport that routes through the proxy at uri.
// socks5/socks5h URIs use a SOCKS dialer; http/https URIs use CONNECT.
func Proxied(uri string) Transport {
	return proxiedTransport{uri: uri}
}

func (p proxiedTransport) Proxy() string { return p.uri }

func (p proxiedTransport) HTTPClient() (*http.Client, error) {
	u, err := url.Parse(p.uri)
	if err != nil {
		return nil, fmt.Errorf("error parsing proxy URL: %w", err)
	}

	transport := newHTTPTransport()
	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.Dial = dialer.Dial //nolint:staticcheck // fallback for dialers without context support
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}

	return &http.Client{Transport: transport, Timeout: httpTimeout}, nil
}

// NewTransport returns Direct for an empty uri and Proxied otherwise.
func NewTransport(uri string) Transport {
	if uri == "" {
		return Direct()
	}
	return Proxied(uri)
}
