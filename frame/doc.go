// Package frame implements the length-prefixed stream transport shared by
// the log and snapshot channels.
//
// Each frame is a little-endian uint32 length L followed by exactly L payload
// bytes. Decoder is the pure part: it accepts arbitrary chunks, emits every
// complete payload in order and keeps a trailing partial frame for the next
// call. No maximum length is enforced; a header above LargeFrameWarnBytes
// raises a single warning and accumulation continues.
//
// Transport wraps a Decoder around one TCP connection:
//
//	t := frame.NewTransport(frame.Deps{Config: frame.Config{Channel: "log"}})
//	_ = t.Connect(ctx, "127.0.0.1", 41003) // status is Connecting immediately
//	for range ticker.C {
//	    for _, payload := range t.Poll() {
//	        handle(payload)
//	    }
//	    _ = t.Status()
//	}
//
// Go has no non-blocking socket reads, so every connection owns a goroutine
// that dials, reads chunks of at most ReadChunkSize bytes and hands them to
// Poll over a buffered channel. Decoder state is only touched by the caller.
package frame
