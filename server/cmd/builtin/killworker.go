package builtin

import (
	"strconv"

	"github.com/mangosd-go/vmserver/server/cmd"
	"github.com/mangosd-go/vmserver/server/vmap"
)

type killWorkerCommand struct {
	srv serverAdapter
}

func newKillWorkerCommand(srv serverAdapter) cmd.Command {
	return cmd.New("kill-worker", "Forcibly terminates a worker goroutine, as the crash handler would after a fatal signal.", "kill-worker <id>", []string{"killworker"}, killWorkerCommand{srv: srv}.run)
}

func (k killWorkerCommand) run(_ cmd.Source, o *cmd.Output, args []string) {
	if len(args) != 1 {
		o.Error("usage: kill-worker <id>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		o.Errorf("invalid worker id %q", args[0])
		return
	}
	k.srv.KillWorker(vmap.WorkerID(n))
	o.Printf("Sent kill signal to worker %d.", n)
}
