package main

import (
	"github.com/ssargent/btreedb/cmd/btreedb/cmd"
	"github.com/ssargent/btreedb/pkg/di"
)

func main() {
	container := di.NewContainer()
	cmd.SetContainer(container)
	cmd.Execute()
}
