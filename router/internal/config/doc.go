// Package config loads the router configuration from the `router:` section
// of config.yaml (the `feeder:` key is ignored by the router binary).
//
// Config fields:
//   - GRPCPort            port for the gRPC RecordService (default 50051)
//   - HTTPPort            port for the REST API, /metrics and /ws/stream (default 8080)
//   - Auth.Mode           "apikey", "jwt" or "none"
//   - Auth.KeyEnv         environment variable holding the expected API key
//   - Auth.Header         gRPC metadata/HTTP header name (default "x-api-key")
//   - Auth.SecretEnv      environment variable holding the JWT HMAC secret
//   - Processor.Threshold Transaction Threshold (default 1000, non-negative)
//   - Window.TTL          how long routed records stay listed (default 5m)
//   - Window.MaxPerChannel per-channel cap (default 500)
//   - Dispatch.BufferSize sink delivery buffer (default 1000)
//   - Logging.Level/Format slog settings (default info/json)
//   - Sinks               webhook | postgres | file delivery targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads on file change; the router applies the
// new threshold and log level without restarting.
package config
