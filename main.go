package main

import (
	"os"

	"github.com/cloudbees-io/checkout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
