// Package version carries build metadata stamped in at link time.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return "rehearse " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies service and upload requests.
func UserAgent() string {
	return "rehearse/" + Version
}
