//go:build !gui

package main

import (
	"os"

	"github.com/metcalfc/aeonsight/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
