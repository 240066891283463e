package meta

import (
	"fmt"
	"runtime"
	"strings"
)

// Info describes the build of a parcel binary, as stamped by the Go linker.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag, e.g.
//
//	go build -ldflags "-X github.com/luma/parcel/internal/meta.Version=1.0.0"
var (
	// Version as an arbitrary string
	Version = "dev"

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// String renders the info the way `parcel version` prints it. Fields the
// linker did not fill in are left out.
func (i Info) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "parcel %s", i.Version)

	for _, field := range []struct{ name, value string }{
		{"build", i.Build},
		{"branch", i.Branch},
		{"built", i.BuildTime},
		{"tags", i.GoTag},
	} {
		if field.value != "" {
			fmt.Fprintf(&b, "\n  %-9s %s", field.name+":", field.value)
		}
	}

	fmt.Fprintf(&b, "\n  %-9s %s\n  %-9s %s", "go:", i.GoVersion, "platform:", i.Platform)

	return b.String()
}
