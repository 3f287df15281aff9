package main

import (
	"os"

	"github.com/hazem-soussi-HA/hazoom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
