// Package config provides environment-driven database configuration for
// integration tests and the demo tooling. All settings have defaults that
// match the docker-compose setup, so a plain `go test -tags integration`
// works without any environment preparation.
package config
