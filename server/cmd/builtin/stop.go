package builtin

import "github.com/mangosd-go/vmserver/server/cmd"

type stopCommand struct {
	srv serverAdapter
}

func newStopCommand(srv serverAdapter) cmd.Command {
	return cmd.New("stop", "Tears down the worker pool and closes persistence stores.", "stop", []string{"shutdown"}, stopCommand{srv: srv}.run)
}

func (s stopCommand) run(_ cmd.Source, o *cmd.Output, _ []string) {
	o.Print("Stopping...")
	if err := s.srv.Close(); err != nil {
		o.Error(err)
	}
}
