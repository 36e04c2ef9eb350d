package version

import "fmt"

// Set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns the version line printed by `tenantscan version`.
func FullVersion() string {
	return fmt.Sprintf("tenantscan %s, build %s, built at %s", Version, Commit, BuildTime)
}

func AbbreviatedVersion() string {
	return fmt.Sprintf("%s-%s", Version, Commit)
}

// UserAgent identifies tenantscan to Graph and the Power Platform APIs.
func UserAgent() string {
	return "tenantscan/" + AbbreviatedVersion()
}
