// Package metadata fetches and parses token metadata documents.
package metadata

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"nft-holdings/internal/observability"
)

// Default configuration values.
const (
	DefaultIPFSGateway    = "https://ipfs.io"
	DefaultArweaveGateway = "https://arweave.net"
	DefaultTimeout        = 15 * time.Second
	DefaultMaxBytes       = 1 << 20
)

var (
	// ErrUnsupportedScheme is returned for a uri that is not http(s), ipfs, ar or data.
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
	// ErrInvalidCID is returned for an ipfs uri whose CIDv0 is not a sha2-256 multihash.
	ErrInvalidCID = errors.New("invalid ipfs cid")
	// ErrTooLarge is returned when a document exceeds the configured size cap.
	ErrTooLarge = errors.New("metadata document too large")
)

// StatusError is returned for a non-2xx gateway response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Fetcher retrieves the document behind a metadata uri.
type Fetcher interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

// HTTPFetcher implements Fetcher over HTTP with gateway rewriting for
// ipfs:// and ar:// uris and inline decoding of data: uris.
type HTTPFetcher struct {
	client         *http.Client
	ipfsGateway    string
	arweaveGateway string
	maxBytes       int64
}

// FetcherOption configures HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithIPFSGateway sets the gateway base used for ipfs:// uris.
func WithIPFSGateway(gateway string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.ipfsGateway = strings.TrimRight(gateway, "/")
	}
}

// WithArweaveGateway sets the gateway base used for ar:// uris.
func WithArweaveGateway(gateway string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.arweaveGateway = strings.TrimRight(gateway, "/")
	}
}

// WithFetchTimeout sets the per-request timeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithMaxBytes caps the accepted document size.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// NewHTTPFetcher creates a fetcher with default gateways.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:         &http.Client{Timeout: DefaultTimeout},
		ipfsGateway:    DefaultIPFSGateway,
		arweaveGateway: DefaultArweaveGateway,
		maxBytes:       DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get returns the document behind uri. data: uris are decoded without a request.
func (f *HTTPFetcher) Get(ctx context.Context, uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "data:") {
		return f.decodeDataURI(uri)
	}

	target, err := f.ResolveURL(uri)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.RecordMetadataLatency(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

// ResolveURL maps a token uri to the http(s) url it is fetched from.
func (f *HTTPFetcher) ResolveURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return uri, nil
	case "ipfs":
		return f.resolveIPFS(uri)
	case "ar":
		id := strings.TrimPrefix(uri[len("ar://"):], "/")
		if id == "" {
			return "", fmt.Errorf("empty arweave id in %q", uri)
		}
		return f.arweaveGateway + "/" + id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// resolveIPFS handles ipfs://<cid>/<path> and the legacy ipfs://ipfs/<cid>/<path>.
func (f *HTTPFetcher) resolveIPFS(uri string) (string, error) {
	rest := uri[len("ipfs://"):]
	rest = strings.TrimPrefix(rest, "ipfs/")

	cid, path, _ := strings.Cut(rest, "/")
	if err := validateCID(cid); err != nil {
		return "", err
	}

	out := f.ipfsGateway + "/ipfs/" + cid
	if path != "" {
		out += "/" + path
	}
	return out, nil
}

// validateCID checks CIDv0 strings as base58btc sha2-256 multihashes.
// Other CID versions are only checked for being non-empty.
func validateCID(cid string) error {
	if cid == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCID)
	}
	if !strings.HasPrefix(cid, "Qm") {
		return nil
	}
	raw, err := base58.Decode(cid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	// 0x12 = sha2-256, 0x20 = 32-byte digest
	if len(raw) != 34 || raw[0] != 0x12 || raw[1] != 0x20 {
		return fmt.Errorf("%w: %s is not a sha2-256 multihash", ErrInvalidCID, cid)
	}
	return nil
}

func (f *HTTPFetcher) decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}

	var body []byte
	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(payload)
			if err != nil {
				return nil, fmt.Errorf("decode data uri: %w", err)
			}
		}
		body = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			unescaped = payload
		}
		body = []byte(unescaped)
	}

	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
