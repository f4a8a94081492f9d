package version

import (
	"strings"
	"testing"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
	if strings.Contains(Version, "\x1b[") {
		t.Errorf("Version must be plain text, got %q", Version)
	}
}

func TestVersion_CanBeOverridden(t *testing.T) {
	origVersion, origGitCommit, origBuildDate := Version, GitCommit, BuildDate
	defer func() { Version, GitCommit, BuildDate = origVersion, origGitCommit, origBuildDate }()

	// simulating build-time ldflags
	Version = "1.2.3"
	GitCommit = "abc123def456"
	BuildDate = "2024-01-15T10:30:00Z"

	if Version != "1.2.3" {
		t.Errorf("Version = %q, want %q", Version, "1.2.3")
	}
	if GitCommit != "abc123def456" {
		t.Errorf("GitCommit = %q, want %q", GitCommit, "abc123def456")
	}
	if BuildDate != "2024-01-15T10:30:00Z" {
		t.Errorf("BuildDate = %q, want %q", BuildDate, "2024-01-15T10:30:00Z")
	}
}

func TestPretty(t *testing.T) {
	tests := []string{
		"0.1.0",
		"0.1.0-dev",
		"1.2.3-rc.1+build.123",
		"dev",
	}
	for _, v := range tests {
		if got := Pretty(v, false); got != v {
			t.Errorf("Pretty(%q, false) = %q", v, got)
		}
		colored := Pretty(v, true)
		if stripANSI(colored) != v {
			t.Errorf("Pretty(%q, true) changed the text: %q", v, colored)
		}
	}
	if !strings.Contains(Pretty("1.2.3-dev", true), "\x1b[") {
		t.Error("expected colour codes")
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func BenchmarkPretty(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Pretty(Version, true)
	}
}
