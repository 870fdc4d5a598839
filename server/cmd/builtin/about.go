package builtin

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/mangosd-go/vmserver/server/cmd"
)

type aboutCommand struct {
	srv serverAdapter
}

func newAboutCommand(srv serverAdapter) cmd.Command {
	return cmd.New("about", "Displays build and runtime information.", "about", nil, aboutCommand{srv: srv}.run)
}

func (a aboutCommand) run(_ cmd.Source, o *cmd.Output, _ []string) {
	o.Print("vmserver: virtual map scheduling core")

	info, ok := debug.ReadBuildInfo()
	goVersion := runtime.Version()
	if ok && info != nil && info.GoVersion != "" {
		goVersion = info.GoVersion
	}
	o.Printf("Go runtime: %s", goVersion)

	if info != nil {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				o.Printf("Commit: %s", setting.Value)
				break
			}
		}
	}

	if started := a.srv.StartTime(); !started.IsZero() {
		o.Printf("Uptime: %s", time.Since(started).Round(time.Second))
	}
}
