package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dyluth/flock/cmd/flock/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Optional .env carrying FLOCK_DISCOVERY_SALT and Redis credentials
	_ = godotenv.Load()

	// Set version information on root command
	commands.SetVersionInfo(version, commit, date)

	// Execute root command
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
