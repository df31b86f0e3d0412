// Package health reports the connection health of the mirrored streams.
//
// FromStream maps a supervised stream's state to healthy, degraded or
// unhealthy; Aggregate folds stream statuses into one client status using
// worst-wins rules. Monitor keeps the latest status per stream and serves
// the aggregate over HTTP next to the metrics endpoint:
//
//	mon := health.NewMonitor()
//	mon.UpdateStream("snapshot", health.StreamInfo{Enabled: true, State: frame.Connected})
//	server.SetHealthHandler(mon.Handler("simmirror"))
//
// Error messages are sanitized before they appear in a status: URLs, file
// paths, IP addresses, ports and credential assignments are replaced with
// placeholders.
package health
