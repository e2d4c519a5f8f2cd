package main

import (
	"os"

	"github.com/daimoniac/aaalint/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
