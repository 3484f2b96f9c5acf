// Package results persists finished worker tasks.
//
// Two sinks are provided: a plain text file receiving one
// "nickname, friend_id" line per successful account, and a SQLite
// repository storing every task result with its per-step timings.
package results
