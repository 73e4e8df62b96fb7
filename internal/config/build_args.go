package config

import "fmt"

// ModuleName is the name printed by the CLI.
const ModuleName = "vault-oracle"

// Set at build time through -ldflags "-X github/chapool/vault-oracle/internal/config.Commit=..."
var (
	Commit    = "< 40 chars git commit hash via ldflags >"
	BuildDate = "< ISO-8601 build date via ldflags >"
)

// GetFormattedBuildArgs returns the version string shown by --version.
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
