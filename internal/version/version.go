package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/termlink"

// buildVersion is set via -ldflags "-X pkt.systems/termlink/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the release version, falling back to a pseudo version from VCS data.
func Current() string {
	return resolve(false)
}

// CurrentWithDirty is Current with a +dirty suffix when the tree was modified.
func CurrentWithDirty() string {
	return resolve(true)
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// Banner renders the one-line version string printed by `termlink version`.
func Banner() string {
	return fmt.Sprintf("termlink %s (%s, %s/%s)", CurrentWithDirty(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func resolve(includeDirty bool) string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return trimDirty(v, includeDirty)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return trimDirty(v, includeDirty)
	}
	if v := pseudoVersion(info, includeDirty); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

func trimDirty(v string, includeDirty bool) string {
	if includeDirty {
		return v
	}
	return strings.TrimSuffix(v, "+dirty")
}

func pseudoVersion(info *debug.BuildInfo, includeDirty bool) string {
	if info == nil {
		return ""
	}
	var revision, stamp string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			stamp = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	out := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if modified && includeDirty {
		out += "+dirty"
	}
	return out
}
