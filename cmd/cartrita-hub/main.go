// Package main provides the entry point for the cartrita-hub CLI.
package main

import (
	"os"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/cmd/cartrita-hub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
