// Package streamhttp exposes a symstream.Device over HTTP.
//
// A client opens a session with POST, then issues any sequence of GET reads,
// each carrying the absolute offset it has reached and the number of bytes
// it can accept. The server keeps no per-session cursor: every read is a
// single Serve call, so clients may use arbitrary, misaligned chunk sizes and
// may move between server instances that share a supply store and a
// sessions.Host.
//
//	POST   /foxes                              -> 201, Symstream-Session: <handle>
//	GET    /foxes?offset=0&capacity=4096       -> 200, body, Symstream-Next-Offset
//	DELETE /foxes                              -> 204
//
// The session handle is a signed token; nodes that should accept each
// other's handles must be configured with the same WithSessionKey seed. An
// empty GET body means the stream has ended.
//
// Authentication is optional. With an auth.Authenticator every request needs
// a bearer token and sessions are bound to the authenticated user; without
// one every caller is "anonymous". WithAuthorizationServers additionally
// publishes protected resource metadata under /.well-known.
//
// Each node caches the sessions it has served. With WithBroker, a DELETE on
// one node evicts the session from every other node's cache; otherwise they
// notice on their next read or reap.
//
// Errors are reported as {"error":{"code":<status>,"message":"..."}}:
//
//	400  malformed offset/capacity, missing session header
//	401  missing or invalid bearer token
//	403  insufficient scope, or the device is not readable
//	404  unknown, expired or foreign session
//	406  no acceptable media type (application/octet-stream, text/plain)
//	416  offset beyond the addressable stream
package streamhttp
