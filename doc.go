// Package simmirror keeps a local, continuously updated mirror of a remote
// simulation's state.
//
// The client consumes two length-prefixed TCP streams, a snapshot/delta feed
// and a structured log feed, and writes newline-terminated command lines to a
// third. Everything runs from a caller-driven tick: no exported operation
// blocks, and blocking socket calls are confined to goroutines owned by each
// connection.
//
// # Architecture
//
//	bytes ─▶ frame.Transport ─▶ payloads
//	              ▲                 │
//	   supervisor.Supervisor        ├─▶ snapshot.Decoder ─▶ reconcile.Reconciler ─▶ selection.Cursor
//	   (reconnect cadence)          └─▶ logring.Ring (filtered view)
//
//	mirror.Client ─▶ events.Observer (events/natssink publishes to NATS)
//	command.Channel ◀─ command lines
//
// # Packages
//
//   - frame: 4-byte little-endian length framing and the non-blocking transport
//   - supervisor: reconnects a stream on a fixed or backoff cadence and logs
//     only meaningful transitions
//   - snapshot: record types and the decoder interface, with a JSON decoder
//   - reconcile: keyed collections with incrementally maintained histograms
//     and reverse indices, and the domain reconciler
//   - selection: cursors that stay valid as collections change
//   - logring: bounded log store with severity, target and text filtering
//   - command: outbound command lines with busy handling
//   - events: change notifications and the NATS sink
//   - mirror: the client wiring everything into one Tick
//   - config, errors, metric, health: ambient configuration, classified
//     errors, Prometheus metrics and stream health
//
// The cmd/simmirror binary runs the client headless with metrics, health,
// a periodic summary and optional stdin command forwarding.
package simmirror
