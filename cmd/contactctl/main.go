/*
Package main provides the contactctl CLI entry point.
*/
package main

import (
	"os"

	"portfolio/backend/internal/cli"
)

func main() {
	if err := cli.Execute(os.Stdout); err != nil {
		os.Exit(1)
	}
}
