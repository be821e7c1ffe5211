// Package main provides the entry point for the prometheus CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/prometheus/cmd/prometheus/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
