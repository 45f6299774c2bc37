package main

import "github.com/spandigital/pgtranslate/internal/cli"

func main() {
	if err := rootCmd.Execute(); err != nil {
		cli.Exit(err)
	}
}
