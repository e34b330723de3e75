// Package sessions persists the metadata of open stream sessions so that a
// transport can find a session again on any process that shares the same
// Host. The session's supply lives in a supply.Store; this package only
// records who owns a session, which device it belongs to and when it was last
// used.
//
// Layers & Roles
//
//	Transport      -> opens/closes sessions, resubmits offsets with every read
//	Host           -> metadata durability with a sliding TTL
//	symstream      -> the session itself (counter binding and Serve)
//
// Implementations
//
//	memoryhost : in-memory reference used for tests / single-process servers
//	redishost  : Redis backed implementation for horizontal scale
//
// Both are exercised by the sessionhosttest conformance suite.
package sessions
