// Command replay runs recorded assistant utterances back through the status
// protocol: segmentation, the readiness gate and, when a solver is given,
// dispatch and interpretation.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
