// Command domainkit manages entity domains declared in YAML schema files.
package main

import "github.com/mesh-intelligence/domainkit/internal/cli"

func main() {
	cli.Execute()
}
