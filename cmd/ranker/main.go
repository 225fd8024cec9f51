package main

import "github.com/auratask/auratask/services/ranker/cli"

func main() {
	cli.Execute()
}
