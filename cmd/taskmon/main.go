package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/fatih/color"

	"github.com/poltergeist/taskmon/pkg/cli"
)

// version is set with -ldflags "-X main.version=..."
var version = ""

func main() {
	cfg := cli.NewConfig()
	cfg.Version = resolveVersion()

	if err := cli.NewCLI(cfg).ExecuteContext(context.Background(), os.Args[1:]); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "taskmon: %v\n", err)
		os.Exit(1)
	}
}

func resolveVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
