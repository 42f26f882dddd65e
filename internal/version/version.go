// Package version reports build metadata.
package version

import (
	"runtime"
	"runtime/debug"
)

// Overridden at link time with -X.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by `voxtrip version`.
func String() string {
	commit, date := Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		commit, date = fromBuildInfo(info, commit, date)
	}
	return "voxtrip " + Version + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ")"
}

// fromBuildInfo fills unset commit and date from embedded VCS settings.
func fromBuildInfo(info *debug.BuildInfo, commit string, date string) (string, string) {
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == "none" && setting.Value != "" {
				commit = setting.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && setting.Value != "" {
				date = setting.Value
			}
		}
	}
	return commit, date
}
