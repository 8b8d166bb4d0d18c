// The main package for the harvester executable.
package main

import "github.com/civicgraph/harvester/cmd"

func main() {
	cmd.Execute()
}
