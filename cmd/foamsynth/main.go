package main

import (
	"errors"
	"fmt"
	"os"

	"foamsynth/pkg/synthesis"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		var se *synthesis.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "Error %d: %v\n", se.Code, se.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
