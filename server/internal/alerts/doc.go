// Package alerts evaluates operator-defined rules against the latest enriched
// reading of every run and delivers firing and resolved transitions to Slack,
// Teams, generic HTTP webhooks and an optional Kafka topic.
package alerts
