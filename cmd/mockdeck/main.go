// Command mockdeck serves and records mock HTTP APIs.
package main

import "github.com/mockdeck/mockdeck/pkg/cli"

func main() {
	cli.Execute()
}
