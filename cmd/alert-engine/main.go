package main

import "github.com/guardian-safety/alert-engine/cmd/alert-engine/cmd"

func main() {
	cmd.Execute()
}
