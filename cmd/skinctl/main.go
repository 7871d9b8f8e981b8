package main

import "github.com/Brownie44l1/skinlens/internal/cli"

func main() {
	cli.Execute()
}
