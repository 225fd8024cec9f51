package main

import "github.com/auratask/auratask/services/api-gateway/cli"

func main() {
	cli.Execute()
}
