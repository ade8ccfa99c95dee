package main

import "github.com/escrowd-network/escrowd/internal/cli"

func main() {
	cli.Execute()
}
