// Package snapshot defines the simulation records carried on the snapshot
// stream and decodes frame payloads into them.
//
// A payload is either a full snapshot, whose collection keys replace whole
// collections, or a delta, whose *_updates and *_removed keys patch them.
// Presence is significant: a nil field was absent from the payload.
//
//	s, err := snapshot.JSONDecoder{}.Decode(payload)
//	if err != nil {
//		// drop this payload; the stream stays in sync
//	}
package snapshot
