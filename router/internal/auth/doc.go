// Package auth authenticates router clients on both transports.
//
// Modes:
//   - "apikey": the value of a configured header (gRPC metadata key or HTTP
//     header, default x-api-key) must equal the expected key
//   - "jwt": an "authorization: Bearer <token>" HS256 token signed with
//     the configured secret must validate
//   - "none" or an unconfigured key/secret: every call is allowed
//
// UnaryInterceptor guards the gRPC RecordService; Middleware guards /api/.
package auth
