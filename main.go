package main

import (
	"yield-rebalancer/internal/cli"
)

func main() {
	cli.Execute()
}
