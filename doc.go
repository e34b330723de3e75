// Package symstream serves a bounded supply of identical fixed-width symbols
// to readers that ask for arbitrary, possibly misaligned amounts of bytes.
//
// A Device is the registration context: it owns the symbol, the supply mode
// and, in ModeShared, the counter every session draws from. Sessions are
// opened from a Device and serve reads through Serve, which turns an absolute
// stream offset and a destination capacity into bytes written to a Sink.
//
// Guarantees
//
//	Symbols are byte-exact units, even when a read ends mid-symbol.
//	A bounded stream never delivers more whole symbols than its supply.
//	A symbol is charged once, by the read that delivers its last byte.
//	A read returns 0 only for zero capacity or an exhausted supply.
//
// Supply modes
//
//	ModeUnbounded : no counter; every read is filled
//	ModeSession   : a private counter per session (default 200 symbols)
//	ModeShared    : one counter for the whole device (default 1_000_000 symbols)
//
// Example:
//
//	dev, err := symstream.Register(ctx, "foxes", symstream.WithMode(symstream.ModeSession))
//	if err != nil { log.Fatal(err) }
//	defer dev.Close(ctx)
//
//	sess, err := dev.Open(ctx)
//	if err != nil { log.Fatal(err) }
//	defer sess.Close(ctx)
//
//	_, _ = io.Copy(os.Stdout, sess.NewReader(ctx))
//
// Counters live in a supply.Store; the default is process-local
// (memorysupply). Use redissupply to share one supply between processes.
package symstream
