package wire_test

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/pkg/wire"
)

// echoServer returns one routed result per record, echoing its ID.
type echoServer struct {
	wire.UnimplementedRecordServiceServer
}

func (echoServer) Submit(_ context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	resp := &wire.SubmitResponse{Ok: true}
	for _, r := range req.Records {
		resp.Results = append(resp.Results, types.Result{
			ID:      r.ID,
			Outcome: types.OutcomeRouted,
			Channel: "non-fraud",
			Status:  r.Attributes[types.AttrAmount],
		})
	}
	return resp, nil
}

func dial(t *testing.T, srv wire.RecordServiceServer) *wire.Client {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	wire.RegisterRecordServiceServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return wire.NewClient(conn)
}

func TestSubmit_RoundTripsJSON(t *testing.T) {
	client := dial(t, echoServer{})

	resp, err := client.Submit(context.Background(), &wire.SubmitRequest{
		Records: []types.Record{
			{ID: "a", Attributes: map[string]string{types.AttrAmount: "12.5"}},
			{ID: "b", Attributes: map[string]string{types.AttrAmount: "7"}},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Ok {
		t.Error("Ok: got false, want true")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	if resp.Results[0].ID != "a" || resp.Results[0].Status != "12.5" {
		t.Errorf("result[0]: got %+v", resp.Results[0])
	}
	if !resp.Results[1].Routed() {
		t.Errorf("result[1].Routed(): got false")
	}
}

func TestSubmit_Unimplemented(t *testing.T) {
	client := dial(t, wire.UnimplementedRecordServiceServer{})

	_, err := client.Submit(context.Background(), &wire.SubmitRequest{})
	if code := status.Code(err); code != codes.Unimplemented {
		t.Errorf("code: got %v, want Unimplemented", code)
	}
}
