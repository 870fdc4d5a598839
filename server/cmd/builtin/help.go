package builtin

import (
	"sort"

	"github.com/mangosd-go/vmserver/server/cmd"
)

func newHelpCommand() cmd.Command {
	return cmd.New("help", "Shows available commands and their usage.", "help", []string{"?"}, runHelp)
}

func runHelp(_ cmd.Source, o *cmd.Output, args []string) {
	if len(args) == 1 {
		command, ok := cmd.ByAlias(args[0])
		if !ok {
			o.Errorf("unknown command %q", args[0])
			return
		}
		if desc := command.Description(); desc != "" {
			o.Print(desc)
		}
		o.Print("usage: " + command.Usage())
		return
	}

	names := cmd.Names()
	if len(names) == 0 {
		o.Print("No commands available.")
		return
	}
	sort.Strings(names)
	o.Printf("Available commands (%d):", len(names))
	for _, name := range names {
		command, _ := cmd.ByAlias(name)
		line := "/" + name
		if desc := command.Description(); desc != "" {
			line += " - " + desc
		}
		o.Print(line)
	}
}
