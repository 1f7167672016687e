// Package main provides the pdimport CLI.
package main

import "github.com/propertydigital/pdimport/internal/cli"

func main() {
	cli.Execute()
}
