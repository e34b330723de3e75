// Package stdio drains a symstream.Device session to a writer, the way
// `cat /dev/foxes` or `dd if=/dev/foxes bs=N count=M` would.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 session
//	Auth             : OS user (lightweight implicit principal)
//	Reads            : fixed block size, optional block count
//	End of stream    : a zero-byte read, or the count limit
//
// Example:
//
//	dev, _ := symstream.Register(ctx, "foxes")
//	h := stdio.NewHandler(dev, stdio.WithBlockSize(3))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// Block sizes need not be multiples of the symbol width: a symbol split
// across two reads is finished by the second one.
package stdio
