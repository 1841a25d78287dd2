// Command chase runs the chase over DLGP knowledge bases and answers their
// queries.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
