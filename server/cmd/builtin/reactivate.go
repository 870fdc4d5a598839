package builtin

import (
	"strconv"

	"github.com/mangosd-go/vmserver/server/cmd"
)

type reactivateCommand struct {
	srv serverAdapter
}

func newReactivateCommand(srv serverAdapter) cmd.Command {
	return cmd.New("reactivate", "Resizes the worker pool to the given thread count, tearing down and restarting all workers unless the active pool already has that count.", "reactivate <threads>", nil, reactivateCommand{srv: srv}.run)
}

func (r reactivateCommand) run(_ cmd.Source, o *cmd.Output, args []string) {
	if len(args) != 1 {
		o.Error("usage: reactivate <threads>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		o.Errorf("invalid thread count %q", args[0])
		return
	}
	r.srv.Reactivate(n)
	o.Printf("Reactivated worker pool with %d thread(s).", n)
}
