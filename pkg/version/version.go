package version

import "fmt"

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
	Commit  = "none"
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func GetInfo() Info {
	return Info{Version: Version, Commit: Commit}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
}
