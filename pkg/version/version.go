package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at build time, for example:
// -X github.com/lkarlslund/chatsettings/pkg/version.Version=vX.Y.Z
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const Component = "chatsettings"

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
}

func Current() Info {
	info := Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		v := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = v
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = v
			}
		case "vcs.modified":
			info.Dirty = strings.EqualFold(v, "true")
		}
	}
	return info
}

func (i Info) String() string {
	out := i.Version
	if i.Commit != "" {
		short := i.Commit
		if len(short) > 12 {
			short = short[:12]
		}
		out += "+" + short
	}
	if i.Dirty {
		out += "+dirty"
	}
	return out
}

// UserAgent is sent by the settings client on every request.
func UserAgent() string {
	return Component + "/" + Current().Version
}

func Detailed(component string) string {
	if strings.TrimSpace(component) == "" {
		component = Component
	}
	v := Current()
	out := fmt.Sprintf("%s %s", component, v)
	if v.Date != "" {
		out += "\nBuilt: " + v.Date
	}
	return out
}
