// Package redis connects to Redis from environment-driven configuration,
// retrying at startup and exposing a pool healthcheck.
package redis
