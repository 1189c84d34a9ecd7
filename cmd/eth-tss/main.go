package main

import (
	"github.com/ssvlabs/eth-tss/cli"
)

var (
	// AppName is the application name
	AppName = "eth-tss"

	// Version is the app version
	Version = "v0.1.0"
)

func main() {
	cli.Execute(AppName, Version)
}
