// Command knowdeskctl runs crawls, questions and migrations against the
// knowdesk stores without going through the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
