/*
Package version reports build information for tool-finder-mcp.

Values are injected with ldflags at release time:

	-X github.com/khanglvm/tool-finder-mcp/internal/version.Version=v1.2.0

Unset values leave a "dev" build.
*/
package version

// Name is the program name reported to child servers and MCP clients.
const Name = "tool-finder-mcp"

// Set via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the machine-readable build description.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Name: Name, Version: Version, Commit: Commit, Date: Date}
}

// String formats the build for humans.
func (i Info) String() string {
	return FormatVersion(i.Version, i.Commit, i.Date)
}

// FormatVersion formats version components into a display string.
func FormatVersion(version, commit, date string) string {
	if version == "dev" {
		return version + " (development build)"
	}
	return version + " (commit: " + commit + ", built: " + date + ")"
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}
