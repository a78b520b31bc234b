// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/bitctf/pkg/api"      //nolint:depguard
	"github.com/ssargent/bitctf/pkg/registry" //nolint:depguard
)

// RegistryOpener opens the schema registry kept in a data directory
type RegistryOpener func(dataDir string, opts ...registry.Option) (*registry.Registry, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory  api.ServerFactory
	registryOpener RegistryOpener
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory:  api.NewServerFactory(),
		registryOpener: registry.Open,
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// OpenRegistry opens the schema registry in dataDir
func (c *Container) OpenRegistry(dataDir string, opts ...registry.Option) (*registry.Registry, error) {
	return c.registryOpener(dataDir, opts...)
}

// SetRegistryOpener allows overriding how the registry is opened (for testing)
func (c *Container) SetRegistryOpener(opener RegistryOpener) {
	c.registryOpener = opener
}
