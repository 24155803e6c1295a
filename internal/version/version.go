// Package version reports the client build and the backend it talks to.
package version

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"
	"time"

	"pkt.systems/cellbook/schema"
)

const defaultModule = "pkt.systems/cellbook"

// buildVersion is set via -ldflags "-X pkt.systems/cellbook/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the best available version string without a dirty suffix.
func Current() string {
	return resolve(readBuildInfo, false)
}

// CurrentWithDirty keeps the +dirty suffix when the build tree was modified.
func CurrentWithDirty() string {
	return resolve(readBuildInfo, true)
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := readBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// BackendVersioner asks the backend for its version.
type BackendVersioner interface {
	Version(ctx context.Context) (schema.BackendVersion, error)
}

// Report pairs the client build with the backend version.
type Report struct {
	Client       string `json:"client"`
	Module       string `json:"module"`
	Backend      string `json:"backend,omitempty"`
	BackendError string `json:"backend_error,omitempty"`
}

// Collect builds a Report. A failing backend is recorded, not returned.
func Collect(ctx context.Context, backend BackendVersioner) Report {
	report := Report{Client: CurrentWithDirty(), Module: Module()}
	if backend == nil {
		return report
	}
	v, err := backend.Version(ctx)
	if err != nil {
		report.BackendError = err.Error()
		return report
	}
	report.Backend = backendVersionString(v)
	return report
}

// backendVersionString picks the "version" member, or the whole report.
func backendVersionString(v schema.BackendVersion) string {
	if raw, ok := v["version"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolve(read func() (*debug.BuildInfo, bool), includeDirty bool) string {
	if strings.TrimSpace(buildVersion) != "" {
		return trimDirty(buildVersion, includeDirty)
	}
	if info, ok := read(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return trimDirty(v, includeDirty)
		}
		if v := pseudoVersion(info, includeDirty); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func trimDirty(v string, includeDirty bool) string {
	value := strings.TrimSpace(v)
	if includeDirty {
		return value
	}
	return strings.TrimSuffix(value, "+dirty")
}

// pseudoVersion derives a Go pseudo-version from VCS stamps.
func pseudoVersion(info *debug.BuildInfo, includeDirty bool) string {
	if info == nil {
		return ""
	}
	var revision, vcsTime string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" || vcsTime == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if modified && includeDirty {
		ver += "+dirty"
	}
	return ver
}
