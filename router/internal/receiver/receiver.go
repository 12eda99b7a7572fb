package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/txnroute/txnroute/pkg/wire"
	"github.com/txnroute/txnroute/router/internal/flow"
)

// Receiver implements wire.RecordServiceServer.
type Receiver struct {
	wire.UnimplementedRecordServiceServer
	flow *flow.Flow
}

// New creates a Receiver that routes accepted batches through f.
func New(f *flow.Flow) *Receiver {
	return &Receiver{flow: f}
}

// Submit is the unary RPC handler called by feeder instances.
func (r *Receiver) Submit(ctx context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	results, err := r.flow.Submit(ctx, req.Records)
	switch {
	case errors.Is(err, wire.ErrNoRecords):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	case err != nil:
		slog.Error("receiver: submit failed", "records", len(req.Records), "err", err)
		return nil, status.Error(codes.Internal, "submit failed")
	}

	slog.Debug("receiver: batch routed", "records", len(results))
	return &wire.SubmitResponse{Ok: true, Results: results}, nil
}
