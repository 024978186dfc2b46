// The main package for the discovery executable.
package main

import "github.com/vindloodgieter/discovery/cmd"

func main() {
	cmd.Execute()
}
