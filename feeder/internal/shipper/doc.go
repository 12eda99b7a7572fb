// Package shipper submits transaction records to the router over gRPC
// (RecordService.Submit, JSON codec).
//
// Shipper.Ship() is non-blocking: records go into an in-memory channel of
// buffer_size entries and the oldest is evicted when it is full.
//
// Shipper.Run() drains the buffer in batches of up to batch_size,
// reconnecting with truncated exponential backoff (1s to 60s, ±25% jitter)
// on connection or send errors. A batch that failed transiently is retried
// first after reconnecting. Permanent gRPC errors (Unauthenticated,
// PermissionDenied, InvalidArgument) discard the batch.
//
// Auth: mTLS via credentials.NewTLS(), API key or bearer token via gRPC
// metadata, or plaintext for local development. The dialFn field is
// injectable for tests.
package shipper
