// Command overlaptrack builds tracking graphs from labelled point snapshot
// files and manages stored tracking runs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
