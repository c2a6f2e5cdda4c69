package main

import (
	"pocketwatch/internal/cli"
)

func main() {
	cli.Execute()
}
