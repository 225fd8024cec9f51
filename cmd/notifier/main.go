package main

import "github.com/auratask/auratask/services/notifier/cli"

func main() {
	cli.Execute()
}
