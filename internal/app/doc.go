// Package app assembles the key service application: configuration,
// logging, metrics, stores, quota policies, the lifecycle service, and
// the HTTP server with its middleware chain. main() should only call
// NewApplication and Run.
package app
