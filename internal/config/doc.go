// Package config loads the agent's runtime configuration from environment
// variables, with optional .env file support for local development.
package config
