package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/txnroute/txnroute/feeder/internal/config"
	"github.com/txnroute/txnroute/pkg/types"
)

const defaultPollTimeout = 10 * time.Second

// Source yields the records that appeared since the previous Poll.
type Source interface {
	ID() string
	Poll(ctx context.Context) ([]types.Record, error)
}

// New returns the Source for src. The HTTP client, when needed, is built
// once and reused across polls.
func New(src config.Source) (Source, error) {
	switch src.Type {
	case "file":
		return NewFile(src.ID, src.Path), nil
	case "http":
		client, err := NewHTTPClient(src.Auth, src.TLS)
		if err != nil {
			return nil, fmt.Errorf("source %q: build http client: %w", src.ID, err)
		}
		return &httpSource{id: src.ID, endpoint: src.Endpoint, client: client}, nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
}

// authRoundTripper injects credentials into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds a client that authenticates with auth and honours
// the TLS options.
func NewHTTPClient(auth config.AuthConfig, tlsOpts config.TLSConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
		if auth.CAFile != "" {
			pool, err := loadCAPool(auth.CAFile)
			if err != nil {
				return nil, err
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: auth,
		},
		Timeout: defaultPollTimeout,
	}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certs found in ca file %q", path)
	}
	return pool, nil
}

// wireRecord is the on-disk and over-HTTP form of a record.
type wireRecord struct {
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// decodeRecord parses one JSON record, converting attribute values to
// strings. Null attributes are omitted.
func decodeRecord(data []byte) (types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return types.Record{}, err
	}
	return w.record()
}

func (w wireRecord) record() (types.Record, error) {
	if w.Attributes == nil {
		return types.Record{}, fmt.Errorf("record %q: attributes object is required", w.ID)
	}
	attrs := make(map[string]string, len(w.Attributes))
	for k, v := range w.Attributes {
		switch v := v.(type) {
		case nil:
		case string:
			attrs[k] = v
		case json.Number:
			attrs[k] = v.String()
		case bool:
			attrs[k] = strconv.FormatBool(v)
		default:
			return types.Record{}, fmt.Errorf("record %q: attribute %q must be a string, number or boolean", w.ID, k)
		}
	}
	return types.Record{ID: w.ID, Attributes: attrs}, nil
}
