// Package redishost implements sessions.Host on top of Redis so that every
// node of a horizontally scaled deployment sees the same sessions.
//
// Design Notes
//   - Metadata: JSON blob stored at prefix+"session:"+id
//   - Expiry: the key's PX TTL mirrors the sliding TTL; TouchSession rewrites
//     the blob and resets the TTL inside a WATCH transaction
//   - Create: SET NX so concurrent creates with the same id cannot clobber
//
// Example:
//
//	host, _ := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	defer host.Close()
//
// Use memoryhost for ephemeral development; use redishost where scale-out or
// restart persistence is required.
package redishost
