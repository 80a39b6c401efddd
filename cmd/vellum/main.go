package main

import (
	"os"

	"github.com/vellum-io/vellum/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
