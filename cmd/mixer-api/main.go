// Command mixer-api runs the conversational mixer controller.
//
// Usage:
//
//	mixer-api [--config path] <command>
//
// Commands:
//
//	serve        - HTTP API (POST /chat, GET /instruments, GET /conversations/{id})
//	chat         - interactive console conversation
//	instruments  - print the configured instrument catalog
//	prune        - delete stale conversations from Firestore
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
