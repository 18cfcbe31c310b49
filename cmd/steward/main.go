// Package main is the entry point for the steward CLI.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in GetAPIKey)
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}

	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("steward"),
		kong.Description("Orchestrates natural-language requests through interpretation, planning, supervised execution, and review."),
		kongVars(),
	)

	// Version must work without LLM or storage configuration.
	if ctx.Command() == "version" {
		printVersion()
		return
	}

	rt, err := newRuntime(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	ctx.FatalIfErrorf(ctx.Run(rt))
}

func printVersion() {
	fmt.Printf("steward version %s (commit: %s, built: %s)\n", version, commit, buildTime)
}
