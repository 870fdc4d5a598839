// Package cmd implements the small command registry used by the admin
// console. Commands are flat: a name, an optional set of aliases and a Run
// function taking the raw argument string split on whitespace. There is no
// in-game targeting system to parse against, so param reflection was dropped
// in favour of plain string args.
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Source is anything a command can be executed on behalf of: the console, an
// admin socket, or a scripted caller.
type Source interface {
	Name() string
	SendCommandOutput(*Output)
}

// Output collects the lines produced by a command invocation so the Source
// can render or log them however it likes.
type Output struct {
	lines []string
	errs  int
}

// Print appends a line of plain output.
func (o *Output) Print(s string) { o.lines = append(o.lines, s) }

// Printf appends a formatted line of plain output.
func (o *Output) Printf(format string, args ...any) {
	o.lines = append(o.lines, fmt.Sprintf(format, args...))
}

// Error appends an error line. v may be an error or any value accepted by
// fmt.Sprint.
func (o *Output) Error(v any) {
	o.errs++
	o.lines = append(o.lines, "error: "+fmt.Sprint(v))
}

// Errorf appends a formatted error line.
func (o *Output) Errorf(format string, args ...any) {
	o.errs++
	o.lines = append(o.lines, "error: "+fmt.Sprintf(format, args...))
}

// Lines returns the accumulated output lines in order.
func (o *Output) Lines() []string { return o.lines }

// ErrorCount returns the number of Error/Errorf calls made against o.
func (o *Output) ErrorCount() int { return o.errs }

// Command is a single named admin operation.
type Command interface {
	Name() string
	Aliases() []string
	Usage() string
	Description() string
	Run(src Source, o *Output, args []string)
}

type simpleCommand struct {
	name        string
	description string
	usage       string
	aliases     []string
	run         func(Source, *Output, []string)
}

func (c simpleCommand) Name() string        { return c.name }
func (c simpleCommand) Aliases() []string   { return c.aliases }
func (c simpleCommand) Usage() string       { return c.usage }
func (c simpleCommand) Description() string { return c.description }
func (c simpleCommand) Run(src Source, o *Output, args []string) {
	c.run(src, o, args)
}

// New builds a Command. usage should be a short one-line synopsis, e.g.
// "sweep" or "kill-worker <id>".
func New(name, description, usage string, aliases []string, run func(Source, *Output, []string)) Command {
	return simpleCommand{name: name, description: description, usage: usage, aliases: aliases, run: run}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Command{}
)

// Register adds c under its name and every alias it declares. Registering a
// name twice overwrites the previous entry, which is convenient for tests
// that rebuild the registry per case.
func Register(c Command) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(c.Name())] = c
	for _, alias := range c.Aliases() {
		registry[strings.ToLower(alias)] = c
	}
}

// ByAlias looks up a command by its name or any registered alias.
func ByAlias(alias string) (Command, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[strings.ToLower(alias)]
	return c, ok
}

// Commands returns a snapshot of the alias -> Command table.
func Commands() map[string]Command {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]Command, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}

// Names returns the sorted set of primary command names (excluding aliases).
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for alias, c := range registry {
		if strings.EqualFold(alias, c.Name()) {
			names = append(names, c.Name())
		}
	}
	sort.Strings(names)
	return names
}
