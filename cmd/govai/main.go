package main

import (
	"github.com/govai-platform/govai/pkg/cli"
)

func main() {
	cli.Execute()
}
