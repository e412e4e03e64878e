// Command streamcored runs the streamcore pipeline daemon.
package main

import (
	"os"

	"github.com/kestrelav/streamcore/cmd/streamcored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
