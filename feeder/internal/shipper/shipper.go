package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/txnroute/txnroute/feeder/internal/config"
	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Stats counts records by what happened to them.
type Stats struct {
	Shipped   uint64 // accepted by the router
	Routed    uint64 // of Shipped, forwarded to a channel
	Dropped   uint64 // of Shipped, discarded by the router
	Evicted   uint64 // lost to a full buffer
	Discarded uint64 // lost to a permanent send error
}

// Shipper buffers records and submits them to the router.
type Shipper struct {
	cfg    config.FeederConfig
	buf    chan types.Record
	dialFn dialFunc

	retry []types.Record // batch that failed transiently; owned by Run

	shipped, routed, dropped, evicted, discarded atomic.Uint64
}

// dialFunc opens the gRPC connection. Tests replace it with a loopback dialer.
type dialFunc func(ctx context.Context, endpoint string, cfg config.FeederConfig) (*grpc.ClientConn, error)

// New creates a Shipper for cfg.
func New(cfg config.FeederConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan types.Record, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues rec, evicting the oldest buffered record when full.
func (s *Shipper) Ship(rec types.Record) {
	for {
		select {
		case s.buf <- rec:
			return
		default:
		}
		select {
		case old := <-s.buf:
			s.evicted.Add(1)
			slog.Warn("shipper: buffer full, evicted oldest record",
				"record_id", old.ID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Stats returns the running counters.
func (s *Shipper) Stats() Stats {
	return Stats{
		Shipped:   s.shipped.Load(),
		Routed:    s.routed.Load(),
		Dropped:   s.dropped.Load(),
		Evicted:   s.evicted.Load(),
		Discarded: s.discarded.Load(),
	}
}

// Run submits buffered records until ctx is cancelled, reconnecting with
// backoff whenever the connection fails.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.RouterEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.RouterEndpoint, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.RouterEndpoint)
		bo.reset()

		err = s.drain(ctx, wire.NewClient(conn))
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.RouterEndpoint, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends batches until a transient error or ctx cancellation.
func (s *Shipper) drain(ctx context.Context, client *wire.Client) error {
	for {
		batch := s.retry
		s.retry = nil
		if len(batch) == 0 {
			var ok bool
			if batch, ok = s.next(ctx); !ok {
				return nil
			}
		}

		if err := s.send(ctx, client, batch); err != nil {
			if isPermanentError(err) {
				s.discarded.Add(uint64(len(batch)))
				slog.Error("shipper: permanent send error, discarding batch",
					"records", len(batch), "err", err)
				continue
			}
			s.retry = batch
			return fmt.Errorf("send: %w", err)
		}
	}
}

// next blocks for the first record, then takes whatever else is buffered
// up to the batch size.
func (s *Shipper) next(ctx context.Context) ([]types.Record, bool) {
	var batch []types.Record
	select {
	case <-ctx.Done():
		return nil, false
	case rec := <-s.buf:
		batch = append(batch, rec)
	}
	for len(batch) < s.cfg.BatchSize {
		select {
		case rec := <-s.buf:
			batch = append(batch, rec)
		default:
			return batch, true
		}
	}
	return batch, true
}

func (s *Shipper) send(ctx context.Context, client *wire.Client, batch []types.Record) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	switch a := s.cfg.RouterAuth; a.Mode {
	case "apikey":
		if a.KeyEnv != "" {
			sendCtx = metadata.AppendToOutgoingContext(sendCtx, a.EffectiveHeader(), a.Key())
		}
	case "bearer":
		if a.TokenEnv != "" {
			sendCtx = metadata.AppendToOutgoingContext(sendCtx, "authorization", "Bearer "+a.Token())
		}
	}

	resp, err := client.Submit(sendCtx, &wire.SubmitRequest{Records: batch})
	if err != nil {
		return err
	}
	if !resp.Ok {
		slog.Warn("shipper: router rejected batch", "records", len(batch), "message", resp.Message)
		return nil
	}

	s.shipped.Add(uint64(len(batch)))
	for _, r := range resp.Results {
		if r.Routed() {
			s.routed.Add(1)
			continue
		}
		s.dropped.Add(1)
		slog.Warn("shipper: router dropped record", "record_id", r.ID, "reason", r.Reason)
	}
	slog.Debug("shipper: batch delivered", "records", len(batch))
	return nil
}

// isPermanentError reports gRPC errors that retrying the same batch cannot fix.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func defaultDial(ctx context.Context, endpoint string, cfg config.FeederConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // DialContext kept for grpc 1.62
}

// dialOptions picks transport credentials for the router auth mode.
// Key and token modes authenticate per call, so the transport is plaintext.
func dialOptions(cfg config.FeederConfig) ([]grpc.DialOption, error) {
	if cfg.RouterAuth.Mode == "mtls" {
		creds, err := buildMTLSCreds(cfg.RouterAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
}

func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

// backoff is truncated exponential backoff with ±25% jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

func (b *backoff) next() time.Duration {
	d := b.current + time.Duration(float64(b.current)*0.25*(rand.Float64()*2-1)) //nolint:gosec // not crypto
	if d < 0 {
		d = 0
	}
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
