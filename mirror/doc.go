// Package mirror wires the stream transports, reconnect supervisors,
// reconciler, log ring and selection cursors into one tick-driven client.
//
// The host drives the client from a single goroutine:
//
//	c, err := mirror.New(mirror.Deps{Config: cfg, Logger: logger})
//	if err != nil {
//		return err
//	}
//	c.Subscribe(sink)
//	if err := c.Start(); err != nil {
//		logger.Warn("Some streams failed to start", "error", err)
//	}
//	for range ticker.C {
//		c.Tick(interval)
//	}
//
// Tick never blocks. Snapshot payloads that fail to decode are dropped and
// counted; the stream stays in sync because framing is independent of
// payload content. Connection transitions of the snapshot and log streams
// also appear in the log ring as synthetic records with target "client".
package mirror
