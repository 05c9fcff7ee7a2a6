// Package processor runs the flashrec subcommands. It owns the session,
// wires the command-line recorder and player into it and prints the
// result of every operation.
package processor
