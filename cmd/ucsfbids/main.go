package main

import (
	"os"

	"github.com/kleenlab/ucsfbids/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
