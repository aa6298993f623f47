package main

import "github.com/scholarpipe/indexer/cmd"

func main() {
	cmd.Execute()
}
