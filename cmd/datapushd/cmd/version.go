package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, set at link time with -ldflags "-X github.com/oneconcern/datapush/cmd/datapushd/cmd.Version=..."
var (
	Version   string
	BuildDate string
	GitCommit string
)

// VersionInfo describes the build of the daemon
type VersionInfo struct {
	Version   string `json:"version,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

// NewVersionInfo reports the build information, with "dev" as the version of untagged builds
func NewVersionInfo() VersionInfo {
	ver := VersionInfo{
		Version:   "dev",
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if Version != "" {
		ver.Version = Version
	}
	return ver
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("Version: %s\nBuild date: %s\nCommit: %s\nGo: %s\n", v.Version, v.BuildDate, v.GitCommit, v.GoVersion)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of datapushd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(NewVersionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
