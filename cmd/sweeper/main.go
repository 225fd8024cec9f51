package main

import "github.com/auratask/auratask/services/sweeper/cli"

func main() {
	cli.Execute()
}
