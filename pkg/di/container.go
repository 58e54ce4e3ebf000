// Package di provides the dependency injection container wiring the
// HTTP server factory the CLI's serve command uses.
package di

import (
	"github.com/ssargent/btreedb/pkg/api" //nolint:depguard
)

// Container holds the application's injectable dependencies.
type Container struct {
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container.
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
	}
}

// GetServerFactory returns the server factory.
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory, for testing.
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
