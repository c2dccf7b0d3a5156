// Package main provides newsdeskctl, a terminal client for the newsdesk
// console. Credentials live in a file that plays the part of the browser's
// local storage: one file, one signed-in user.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
