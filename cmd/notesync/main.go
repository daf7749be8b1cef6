package main

import (
	"fmt"
	"os"

	"enotebook-sync/internal/cli"

	_ "github.com/go-kivik/kivik/v4/couchdb"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
