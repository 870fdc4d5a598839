package builtin

import "github.com/mangosd-go/vmserver/server/cmd"

// Register registers the built-in admin command set against srv.
func Register(srv serverAdapter) {
	cmd.Register(newAboutCommand(srv))
	cmd.Register(newHelpCommand())
	cmd.Register(newStatusCommand(srv))
	cmd.Register(newSweepCommand(srv))
	cmd.Register(newReactivateCommand(srv))
	cmd.Register(newKillWorkerCommand(srv))
	cmd.Register(newStopCommand(srv))
}
