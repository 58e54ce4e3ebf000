// Package api is a thin chi+prometheus HTTP surface over the database
// engine: five operations (Put, Get, Delete, Write, ManualCheckpoint)
// plus health and metrics routes, nothing document-store-shaped.
package api

import "github.com/ssargent/btreedb/internal/batch"

// Engine is the subset of *engine.DB the HTTP surface depends on. An
// interface here (rather than importing internal/engine's concrete
// type directly into every handler signature) keeps pkg/api testable
// against a fake.
type Engine interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte, sync bool) error
	Delete(key []byte, sync bool) error
	Write(b *batch.Batch, sync bool) error
	ManualCheckpoint() error
}

// ServerFactory creates server instances, following the same
// indirection pkg/di wires through for testability.
type ServerFactory interface {
	CreateServerStarter() ServerStarter
}

// ServerStarter starts the API server against a given engine and
// configuration.
type ServerStarter interface {
	StartServer(eng Engine, config ServerConfig) error
}
