// Package config loads sensorcal configuration from config.yaml.
//
// Sections:
//   - server    HTTP port, upload size cap, API-key auth
//   - pipeline  min_val / max_val / spike_threshold (default 95 / 105 / 2.0)
//   - storage   sqlite | postgres | memory backend, retention window
//   - reports   output directory and file prefix
//   - alerts    rules, webhooks and an optional Kafka topic
//   - artifacts optional S3-compatible bucket for report uploads
//   - stream    websocket status push interval (default 5s)
//   - logging   level and optional rotating log file
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// never live in the file; *_env keys name the environment variables that hold
// them. Watch reloads the file on change.
package config
