package simulate

import "os"

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Verdict simulator
=================

Scores every assignment in a directory file against a running engine,
releases the results and checks the published ranking.

Usage:
  simulate [options]

Options:
  -url string         Base URL of the service (default "http://localhost:8080")
  -directory string   Directory YAML shared with the server (default "directory.yaml")
  -secret string      JWT secret (default $VERDICT_JWT_SECRET)
  -issuer string      JWT issuer (default $VERDICT_JWT_ISSUER)
  -admin string       Admin caller ID (default "admin")
  -workers int        Concurrent submitters (default CPU cores * 2)
  -timeout duration   HTTP request timeout (default 30s)
  -resubmit float     Fraction of pairs to resubmit (default 0.1)
  -no-release         Stop after submitting
  -output string      Write generated submissions to this JSON file
  -verbose            Log every failure and the full ranking
  -help               Show this help message
`)
}
