// Package logring stores formatted log records from the log stream in a
// bounded ring and serves a filtered view of them.
//
// The ring evicts the oldest record when full, keeps a count of records per
// normalised target, and recomputes the filtered view only after a record or
// the filter changed.
package logring
