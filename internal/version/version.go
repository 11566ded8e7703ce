// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info — сведения о сборке.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get возвращает сведения о текущей сборке.
func Get() Info {
	return Info{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
}

// Version возвращает только номер версии.
func Version() string { return version }

func (i Info) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", i.Version, i.Commit, i.Date, i.GoVersion)
}
