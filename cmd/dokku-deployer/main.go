package main

import (
	"fmt"
	"os"

	"github.com/alex-galey/dokku-deployer/internal/server"
	"github.com/alex-galey/dokku-deployer/pkg/fxapp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Handle version flag before Fx starts
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("dokku-deployer version %s (built on %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	server.Version = Version
	fxapp.New().Run()
}
