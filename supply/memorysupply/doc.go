// Package memorysupply provides an in-process supply.Store. Counters are
// single atomic cells; decrements are compare-and-swap loops so concurrent
// readers never take a counter below zero and never block each other.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Concurrency       : lock-free counters, RWMutex-guarded key table
//
// For supply shared by several processes prefer redissupply.
package memorysupply
