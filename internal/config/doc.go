// Package config provides configuration management for the secret
// replication daemon: YAML files with environment variable substitution,
// one src/dst definition that resolves into one or more pipelines, and
// validation before any pipeline starts.
package config
