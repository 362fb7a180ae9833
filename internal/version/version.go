// Package version provides build-time metadata for the imagegen service.
// These variables are populated via -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or git commit hash (e.g., "v0.3.0" or "a1b2c3d").
	// Set via: -ldflags "-X imagegen/internal/version.Version=..."
	Version = "dev"

	// BuildDate is the ISO 8601 UTC timestamp when the binary was built.
	// Set via: -ldflags "-X imagegen/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the git commit SHA of the source code.
	// Set via: -ldflags "-X imagegen/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata and the identity of this process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata plus a per-process instance ID.
// The instance ID tags logs and history records so that several
// processes writing to one shared history database can be told apart.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   hostname(),
		}
	})
	return info
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// UserAgent is sent with every provider request.
func (i Info) UserAgent() string {
	return "imagegen/" + i.Version
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("imagegen version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
