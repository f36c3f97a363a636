package main

import "github.com/babysteps/progression/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
