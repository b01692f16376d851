package main

import (
	"os"

	"hnas-backup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
