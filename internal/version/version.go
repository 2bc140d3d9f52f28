// Package version carries build metadata for rscreen.
package version

import (
	"fmt"
	"runtime"
)

// Version and Commit are set at build time via:
//
//	go build -ldflags "-X github.com/chronologos/rscreen/internal/version.VERSION=0.1.0 -X github.com/chronologos/rscreen/internal/version.Commit=abc123"
var (
	VERSION = "dev"
	Commit  = "dev"
)

// String is the one-line form printed by `rscreen version`.
func String() string {
	return fmt.Sprintf("rscreen %s (%s) %s %s/%s", VERSION, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
