// Package memoryhost provides an in-memory sessions.Host implementation
// suitable for tests, development, and single-process servers. All state is
// ephemeral and discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Expiry            : lazy, on access plus a periodic purge during create
//	Concurrency       : safe (RWMutex)
//
// Example:
//
//	host := memoryhost.New()
//	// transport wires this host into streamhttp.New(...)
//
// For multi-node deployments prefer a durable host like redishost.
package memoryhost
