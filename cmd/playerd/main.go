package main

import (
	"os"

	"dashplayd/cmd/playerd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
