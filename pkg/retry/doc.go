// Package retry provides exponential backoff for transient failures.
//
// Two shapes are offered:
//
//   - Do: blocking retry with sleeps between attempts, for one-shot startup
//     work such as connecting the NATS event sink.
//   - Schedule: a tick-driven interval tracker. It never sleeps; the owner
//     accumulates elapsed time per tick and re-attempts once Interval has
//     passed. The reconnect supervisor is built on it.
//
// A Multiplier of 1 (see Fixed) keeps the interval constant, which is the
// default reconnect cadence of 2 seconds.
//
//	sched := retry.NewSchedule(retry.Fixed(2 * time.Second))
//	acc += dt
//	if acc >= sched.Interval() {
//	    acc = 0
//	    connect()
//	    sched.Failed() // until the connection resolves
//	}
package retry
