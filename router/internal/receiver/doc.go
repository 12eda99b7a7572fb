// Package receiver implements the gRPC RecordService for the router.
//
// Receiver.Submit validates the batch, runs it through the flow and returns
// one Result per record. Authentication is enforced by the auth interceptor
// before Submit is called. An empty batch is InvalidArgument; per-record
// drops are reported in the results, never as an RPC error.
package receiver
