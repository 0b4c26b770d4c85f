package rulesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/d-buckner/notifyicon/internal/config"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"golang.org/x/net/http2"
)

// maxPayloadBytes bounds a single rule document. Bitmaps are inlined, so
// real documents run to a few megabytes.
const maxPayloadBytes = 32 << 20

// DocumentPaths are fetched in order from a host source and spliced together.
var DocumentPaths = []string{
	"OS/ColorOS/NotifyIconsSupportConfig.json",
	"APP/NotifyIconsSupportConfig.json",
}

// Endpoints are the base URLs of the two hosted sources.
type Endpoints struct {
	DefaultHost string
	ProxyHost   string
}

// NewHTTPClient returns a client whose transport negotiates HTTP/2.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = 10 * time.Second
	// ConfigureTransport only fails if the transport was already configured.
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Fetcher downloads rule documents.
type Fetcher struct {
	client    *http.Client
	endpoints Endpoints
	logger    *slog.Logger
}

// NewFetcher creates a fetcher for the given endpoints.
func NewFetcher(client *http.Client, endpoints Endpoints, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, endpoints: endpoints, logger: logger}
}

// Fetch returns the raw rule text for source. Host sources are fetched as
// several documents combined with rules.Merge; a custom URL is fetched as is.
func (f *Fetcher) Fetch(ctx context.Context, source config.SyncSource, customURL string) (string, error) {
	var base string
	switch source {
	case config.SyncDefaultHost:
		base = f.endpoints.DefaultHost
	case config.SyncProxyHost:
		base = f.endpoints.ProxyHost
	case config.SyncCustomURL:
		target := strings.TrimSpace(customURL)
		if err := validateURL(target); err != nil {
			return "", &SyncError{Kind: InvalidPayload, URL: target, Err: err}
		}
		return f.fetchDocument(ctx, target)
	default:
		return "", &SyncError{Kind: InvalidPayload, Err: fmt.Errorf("unknown source %s", source)}
	}

	combined := ""
	for _, path := range DocumentPaths {
		target := strings.TrimRight(base, "/") + "/" + path
		body, err := f.fetchDocument(ctx, target)
		if err != nil {
			return "", err
		}
		combined = rules.Merge(combined, body)
	}
	return combined, nil
}

// fetchDocument GETs one document and classifies the outcome.
func (f *Fetcher) fetchDocument(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &SyncError{Kind: InvalidPayload, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", "notifyicon-agent")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &SyncError{Kind: NetworkUnavailable, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return "", &SyncError{Kind: NetworkUnavailable, URL: target, Err: err}
	}
	if len(data) > maxPayloadBytes {
		return "", &SyncError{Kind: InvalidPayload, URL: target, Err: fmt.Errorf("document exceeds %d bytes", maxPayloadBytes)}
	}
	body := string(data)

	f.logger.Debug("fetched rule document", "url", target, "status", resp.StatusCode,
		"bytes", len(data), "duration", time.Since(start))

	if rules.IsChallengePage(body) {
		return "", &SyncError{Kind: ChallengeDetected, URL: target}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SyncError{Kind: NetworkUnavailable, URL: target, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if !rules.IsValidJSONArray(body) {
		return "", &SyncError{Kind: InvalidPayload, URL: target, Err: errors.New("response is not a JSON array")}
	}
	return body, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("custom URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("custom URL has no host")
	}
	return nil
}
