package version

import (
	"fmt"
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// FormatVersion returns a display-friendly version string. For normal versions
// it ensures a "v" prefix (e.g. "0.2.0" becomes "v0.2.0"). Special values like
// "dev" and empty strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckVersionMismatch compares the local build version with the daemon's
// reported version. It returns a human-readable warning when the versions
// differ, or an empty string when they match or when either side reports
// "dev" (development builds are expected to be inconsistent).
func CheckVersionMismatch(daemonVersion string) string {
	if daemonVersion == "" || version == "" {
		return ""
	}
	if version == "dev" || daemonVersion == "dev" {
		return ""
	}
	if strings.TrimPrefix(version, "v") == strings.TrimPrefix(daemonVersion, "v") {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: refunda %s connected to refundad %s (version mismatch), please restart the daemon or reinstall",
		FormatVersion(version), FormatVersion(daemonVersion),
	)
}
