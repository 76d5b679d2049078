// Package main provides callctl, a terminal client for the avatar call backend.
//
// Usage:
//
//	callctl [--server URL] <command> [args]
//
// Commands:
//
//	profiles - list persona profiles
//	tools    - list tools advertised by the custom LLM layer
//	start    - create a session and start a conversation
//	show     - render the current screen of a session
//	end      - end the conversation and return to welcome
//	close    - close a session and forget it
//	watch    - follow screen updates of a session
package main

import (
	"fmt"
	"os"

	"github.com/zhouzirui/avatar-call/backend/cmd/callctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
