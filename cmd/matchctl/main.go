// Command matchctl queries and edits a people-match database offline.
//
//	matchctl questions
//	matchctl next Ran
//	matchctl answer Ran "Do you like pets?" yes
//	matchctl search --filter "Do you like pets?=yes"
//	matchctl match Ran --policy mutual
//
// It loads the same SQLite file the server uses. Writes go through the
// engine, so they are validated and persisted exactly like API writes. Run
// it against a stopped server: a running server keeps its own in-memory copy
// and will not see the changes until it restarts.
package main

import (
	"fmt"
	"os"
)

// Exit codes.
const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
