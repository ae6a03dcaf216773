// Package config loads and validates runtime configuration from
// environment variables, with optional .env file support for local
// development.
package config
