package cmd

import (
	"context"
	"os"
	"runtime/debug"
	"strings"

	"github.com/steipete/vacationcal/internal/outfmt"
)

// Set with -ldflags "-X .../internal/cmd.version=..." by release builds.
var (
	version = ""
	commit  = ""
	date    = ""
)

type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

var readBuildInfo = debug.ReadBuildInfo

func currentBuild() buildInfo {
	b := buildInfo{
		Version: strings.TrimSpace(version),
		Commit:  strings.TrimSpace(commit),
		Date:    strings.TrimSpace(date),
	}
	if b.Version != "" {
		return b
	}
	b.Version = "dev"
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	return b
}

func (b buildInfo) String() string {
	extra := strings.TrimSpace(b.Commit + " " + b.Date)
	if extra == "" {
		return b.Version
	}
	return b.Version + " (" + extra + ")"
}

func VersionString() string { return currentBuild().String() }

type VersionCmd struct{}

func (c *VersionCmd) Run(ctx context.Context) error {
	b := currentBuild()
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, b)
	}
	_, err := os.Stdout.WriteString(b.String() + "\n")
	return err
}
