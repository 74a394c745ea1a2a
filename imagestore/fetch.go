package imagestore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxImageBytes caps a single downloaded thumbnail.
const maxImageBytes = 5 * 1024 * 1024

// Fetcher downloads the bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPFetcher downloads images with a Chrome TLS fingerprint (utls) so
// thumbnail hosts see the same client hello as the browser that found them.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher routing through proxyURL when set.
// http(s) proxies use CONNECT; socks5 proxies are dialed directly.
func NewHTTPFetcher(proxyURL string, timeout time.Duration) (*HTTPFetcher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dial := (&net.Dialer{Timeout: timeout}).DialContext
	transport := &http.Transport{
		TLSHandshakeTimeout: timeout,
		IdleConnTimeout:     30 * time.Second,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("imagestore: parse proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("imagestore: socks5 proxy: %w", err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("imagestore: socks5 dialer does not support contexts")
			}
			dial = cd.DialContext
		default:
			return nil, fmt.Errorf("imagestore: unsupported proxy scheme %q", u.Scheme)
		}
	}

	transport.DialContext = dial
	if transport.Proxy == nil {
		// Behind an http proxy the transport wraps the tunnel in crypto/tls
		// itself, so the custom handshake only applies to direct and socks5.
		transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, dial, network, addr)
		}
	}

	return &HTTPFetcher{client: &http.Client{Transport: transport, Timeout: timeout}}, nil
}

// Client exposes the underlying client, mainly so tests can swap its
// transport.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("imagestore: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.google.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagestore: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("imagestore: HTTP %d for %s", resp.StatusCode, imageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("imagestore: read body: %w", err)
	}
	return body, nil
}

// dialTLSChrome establishes a TLS connection with a Chrome client hello.
// ALPN is pinned to http/1.1 because the transport cannot speak h2 over a
// connection it did not handshake itself.
func dialTLSChrome(ctx context.Context, dial func(ctx context.Context, network, addr string) (net.Conn, error), network, addr string) (net.Conn, error) {
	rawConn, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("utls spec: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("utls preset: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
