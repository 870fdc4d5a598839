// Package console implements a CLI command source reading from an io.Reader
// (stdin by default) and dispatching lines to the cmd registry.
package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"github.com/mangosd-go/vmserver/server/cmd"
)

const (
	defaultPromptPrefix = "> "
	maxHistoryEntries   = 128
)

// Console reads commands from an io.Reader and executes them against the
// global cmd registry.
type Console struct {
	log     *slog.Logger
	reader  io.Reader
	history []string
}

// New returns a Console that writes command output through log.
func New(log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		log:    log,
		reader: os.Stdin,
	}
}

// WithReader sets a custom reader for the console input, so the console can
// be driven without relying on os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the
// context is cancelled or the underlying reader reaches EOF.
func (c *Console) Run(ctx context.Context) {
	if c.reader != os.Stdin {
		c.runScanner(ctx)
		return
	}
	c.runInteractive(ctx)
}

func (c *Console) runScanner(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	src := &consoleSource{log: c.log}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "err", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.execute(line, src)
	}
}

func (c *Console) runInteractive(ctx context.Context) {
	src := &consoleSource{log: c.log}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := prompt.Input(defaultPromptPrefix, c.complete,
			prompt.OptionTitle("vmserver console"),
			prompt.OptionHistory(c.history),
			prompt.OptionPrefix(defaultPromptPrefix),
			prompt.OptionCompletionOnDown(),
			prompt.OptionMaxSuggestion(12),
		)

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.execute(line, src)
	}
}

func (c *Console) execute(line string, src *consoleSource) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	if !strings.HasPrefix(input, "/") {
		input = "/" + input
	}

	c.history = append(c.history, input)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}

	cmd.ExecuteLine(src, input)
}

// complete offers command-name completion and, once a known command has
// been typed, its usage string as a hint. There is no per-parameter
// targeting system to complete against.
func (c *Console) complete(doc prompt.Document) []prompt.Suggest {
	textBefore := doc.TextBeforeCursor()
	word := strings.TrimPrefix(doc.GetWordBeforeCursor(), "/")
	segments := strings.Fields(textBefore)
	hasTrailingSpace := strings.HasSuffix(textBefore, " ")

	if len(segments) == 0 || (len(segments) == 1 && !hasTrailingSpace) {
		return c.commandSuggestions(word)
	}

	commandToken := strings.ToLower(strings.TrimPrefix(segments[0], "/"))
	command, ok := cmd.ByAlias(commandToken)
	if !ok {
		return nil
	}
	return []prompt.Suggest{{
		Text:        strings.TrimSpace(word),
		Description: command.Usage(),
	}}
}

func (c *Console) commandSuggestions(prefix string) []prompt.Suggest {
	names := cmd.Names()
	suggestions := make([]prompt.Suggest, 0, len(names))
	for _, name := range names {
		command, _ := cmd.ByAlias(name)
		usage := command.Usage()
		if usage == "" {
			usage = "/" + name
		}
		suggestions = append(suggestions, prompt.Suggest{
			Text:        name,
			Description: usage,
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Text < suggestions[j].Text
	})
	return prompt.FilterHasPrefix(suggestions, strings.TrimSpace(prefix), true)
}

type consoleSource struct {
	log *slog.Logger
}

func (c *consoleSource) Name() string { return "Console" }

func (c *consoleSource) SendCommandOutput(o *cmd.Output) {
	for _, line := range o.Lines() {
		c.log.Info(line)
	}
}
