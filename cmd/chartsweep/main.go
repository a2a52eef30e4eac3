// Package main provides the entry point for the chartsweep library organizer.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
