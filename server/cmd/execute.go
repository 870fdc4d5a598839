package cmd

import "strings"

// ExecuteLine executes a command line on behalf of the Source passed. The
// commandLine is expected to include the leading slash. If the command
// cannot be found, an error is sent back to the Source's Output.
func ExecuteLine(source Source, commandLine string) {
	if source == nil {
		panic("cmd.ExecuteLine: source must not be nil")
	}
	commandLine = strings.TrimSpace(commandLine)
	if commandLine == "" {
		return
	}
	fields := strings.Fields(commandLine)
	name, ok := strings.CutPrefix(fields[0], "/")
	if !ok || name == "" {
		return
	}

	o := &Output{}
	command, ok := ByAlias(name)
	if !ok {
		o.Errorf("unknown command %q", name)
		source.SendCommandOutput(o)
		return
	}
	command.Run(source, o, fields[1:])
	source.SendCommandOutput(o)
}
