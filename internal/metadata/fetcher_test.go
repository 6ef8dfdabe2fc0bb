package metadata

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCIDv0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestHTTPFetcher_ResolveURL(t *testing.T) {
	f := NewHTTPFetcher(
		WithIPFSGateway("https://gateway.example/"),
		WithArweaveGateway("https://ar.example"),
	)

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr error
	}{
		{"https passthrough", "https://api.example/token/7", "https://api.example/token/7", nil},
		{"ipfs cid only", "ipfs://" + validCIDv0, "https://gateway.example/ipfs/" + validCIDv0, nil},
		{"ipfs with path", "ipfs://" + validCIDv0 + "/7.json", "https://gateway.example/ipfs/" + validCIDv0 + "/7.json", nil},
		{"legacy ipfs prefix", "ipfs://ipfs/" + validCIDv0 + "/7", "https://gateway.example/ipfs/" + validCIDv0 + "/7", nil},
		{"cidv1 accepted", "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", "https://gateway.example/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", nil},
		{"arweave", "ar://abc123", "https://ar.example/abc123", nil},
		{"bad cidv0", "ipfs://Qm0000", "", ErrInvalidCID},
		{"empty cid", "ipfs://", "", ErrInvalidCID},
		{"unsupported scheme", "ftp://host/file", "", ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ResolveURL(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPFetcher_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/" + validCIDv0 + "/7.json":
			w.Write([]byte(`{"name":"Seven"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(WithIPFSGateway(server.URL), WithMaxBytes(32))
	ctx := context.Background()

	body, err := f.Get(ctx, "ipfs://"+validCIDv0+"/7.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Seven"}`, string(body))

	_, err = f.Get(ctx, server.URL+"/missing")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected *StatusError, got %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	_, err = f.Get(ctx, server.URL+"/big")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestHTTPFetcher_DataURI(t *testing.T) {
	f := NewHTTPFetcher(WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	ctx := context.Background()

	doc := `{"name":"Inline","attributes":[{"trait_type":"Level","value":3}]}`

	body, err := f.Get(ctx, "data:application/json;base64,"+base64.StdEncoding.EncodeToString([]byte(doc)))
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(body))

	body, err = f.Get(ctx, "data:application/json,%7B%22name%22%3A%22Plain%22%7D")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Plain"}`, string(body))

	_, err = f.Get(ctx, "data:application/json;base64")
	assert.Error(t, err)
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network must not be used")
}
