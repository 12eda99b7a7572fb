package wire

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/txnroute/txnroute/pkg/types"
)

const (
	serviceName  = "txnroute.v1.RecordService"
	submitMethod = "/" + serviceName + "/Submit"
)

// ErrNoRecords is returned when a SubmitRequest carries no records.
var ErrNoRecords = errors.New("no records in request")

// SubmitRequest is a batch of transaction records.
type SubmitRequest struct {
	Records []types.Record `json:"records"`
}

// SubmitResponse carries one Result per submitted record, in request order.
type SubmitResponse struct {
	Ok      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Results []types.Result `json:"results"`
}

// RecordServiceServer is implemented by the router's receiver.
type RecordServiceServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
}

// UnimplementedRecordServiceServer can be embedded to satisfy
// RecordServiceServer in partial implementations.
type UnimplementedRecordServiceServer struct{}

func (UnimplementedRecordServiceServer) Submit(context.Context, *SubmitRequest) (*SubmitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}

// RegisterRecordServiceServer registers srv on s.
func RegisterRecordServiceServer(s grpc.ServiceRegistrar, srv RecordServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RecordServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "txnroute/v1/record.proto",
}

func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordServiceServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is the typed RecordService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Submit sends one batch. The JSON content-subtype is always applied.
func (c *Client) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, submitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
