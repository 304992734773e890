package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"smart-stick/tracker/cmd/tracker/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
