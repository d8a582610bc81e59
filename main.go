// Package main is the entry point for the trendsync application
package main

import (
	"github.com/ethpandaops/trendsync/cmd"
)

func main() {
	cmd.Execute()
}
