// Package config loads and watches the feeder section of config.yaml.
//
// Top-level types:
//   - Config{Feeder}: the `feeder:` key; the `router:` key is ignored
//   - FeederConfig: router_endpoint, poll_interval, buffer_size, batch_size,
//     router_auth, router_metrics_url, probe_interval, logging, sources[]
//   - Source: id, type (file|http), path or endpoint, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env. Key(), Token()
//     and Password() resolve from environment variables.
//
// Load(path) reads the YAML file, applies defaults (10s poll, 1000 buffer,
// 100 batch, 30s probe), then validates required fields and enums.
//
// Watch(ctx, path, onChange) reloads on write and calls onChange with the
// new Config. Only poll_interval and logging.level are applied live.
package config
