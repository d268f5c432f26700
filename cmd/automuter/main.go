// Command automuter is the speaker verification service behind the
// auto-mute browser extension, plus the tools that build its speaker
// galleries.
//
// Usage:
//
//	automuter [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve       - Run the HTTP/WebSocket verification server
//	enroll      - Enroll a speaker from a URL, file or directory
//	speakers    - List, show and delete enrolled speakers
//	db          - Initialize or wipe a user's speaker store
//	mine        - Mine a speaker's clips from a raw audio corpus
//	similarity  - Score audio files against a target speaker sample
//	version     - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/automuter/cmd/automuter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
