package main

import (
	"github.com/robotalks/diffdrive/pkg/cli/sh"

	_ "github.com/robotalks/diffdrive/pkg/cli/cmds/motion"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
