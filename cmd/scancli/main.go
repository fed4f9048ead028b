package main

import (
	"github.com/robotalks/scanlink/pkg/cli/sh"
	"github.com/robotalks/scanlink/pkg/l0/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
