package builtin

import "github.com/mangosd-go/vmserver/server/cmd"

type sweepCommand struct {
	srv serverAdapter
}

func newSweepCommand(srv serverAdapter) cmd.Command {
	return cmd.New("sweep", "Unloads idle map instances immediately instead of waiting for the next scheduled cleanup.", "sweep", nil, sweepCommand{srv: srv}.run)
}

func (s sweepCommand) run(_ cmd.Source, o *cmd.Output, _ []string) {
	removed := s.srv.Sweep()
	if len(removed) == 0 {
		o.Print("No idle instances were eligible for unload.")
		return
	}
	o.Printf("Unloaded %d idle instance(s):", len(removed))
	for _, id := range removed {
		o.Print(" - " + id.String())
	}
}
