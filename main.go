// The main package for the geoharvest executable.
package main

import (
	"github.com/cna-research/geoharvest/cmd"
)

func main() {
	cmd.Execute()
}
