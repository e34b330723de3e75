// Package redissupply provides a Redis-backed supply.Store. Every process that
// points at the same Redis and key prefix observes one monotonically
// decreasing count per key, which is how a shared supply spans several
// servers.
//
// Decrements run as a Lua script (GET, compare, DECRBY) so the check and the
// mutation are a single atomic step on the server. Creation uses SET NX so a
// restarted process attaches to the existing count instead of refilling it.
//
// Example:
//
//	store, err := redissupply.NewFromEnv()
//	if err != nil { log.Fatal(err) }
//	defer store.Close()
//	dev, err := symstream.Register(ctx, "foxes", symstream.WithStore(store), symstream.WithMode(symstream.ModeShared))
package redissupply
