package main

import (
	"os"

	substreamcmder "github.com/papercomputeco/substream/cmd/substream"
)

func main() {
	cmd := substreamcmder.NewSubstreamCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
