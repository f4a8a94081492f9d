package version

import (
	"strings"

	"github.com/fatih/color"
)

// Version information for the borrowsim CLI.
// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)
)

// Pretty returns v with major, minor and patch numbers coloured.
// Anything after the patch number (pre-release, build) is kept as is.
func Pretty(v string, useColor bool) string {
	parts := strings.SplitN(v, ".", 3)
	if !useColor || len(parts) != 3 {
		return v
	}
	patch, rest := parts[2], ""
	if i := strings.IndexAny(patch, "-+"); i >= 0 {
		patch, rest = patch[:i], patch[i:]
	}
	paint := func(c *color.Color, s string) string {
		c.EnableColor()
		return c.Sprint(s)
	}
	return paint(versionMajorColor, parts[0]) + "." + paint(versionMinorColor, parts[1]) + "." + paint(versionPatchColor, patch) + rest
}
