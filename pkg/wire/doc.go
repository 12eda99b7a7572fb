// Package wire declares the txnroute.v1.RecordService gRPC service used by
// the feeder to submit transaction batches to the router.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// content-subtype "json"; there is no protoc step. Clients must dial with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)) or
// use the Client returned by NewClient, which sets the subtype per call.
package wire
