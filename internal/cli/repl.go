package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. App satisfies it.
type execIface interface {
	Status(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Load(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	Force(ctx context.Context, args []string) error
	Pull(ctx context.Context, args []string) error
	SignIn(ctx context.Context, args []string) error
	SignOut(ctx context.Context, args []string) error
	Live(ctx context.Context, args []string) error
	Revisions(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  status                show sync status
  list [cd|vinyl|want]  list records
  add [want]            add a record
  rm <id> [want]        remove a record
  load                  replace local data with the remote copy
  save                  push local data (stops on conflict)
  force                 push local data, overwriting the remote
  pull                  discard local changes and load
  signin | signout      authenticate with the backend
  live on|off           toggle realtime updates
  revisions             list remote revisions
  restore <id>          restore a revision locally
  exit | quit`

// runREPL reads commands line by line from reader until EOF or exit.
// Handler errors are reported and the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	handlers := map[string]func(context.Context, []string) error{
		"status":    a.Status,
		"l":         a.List,
		"list":      a.List,
		"add":       a.Add,
		"rm":        a.Remove,
		"load":      a.Load,
		"save":      a.Save,
		"force":     a.Force,
		"pull":      a.Pull,
		"signin":    a.SignIn,
		"signout":   a.SignOut,
		"live":      a.Live,
		"revisions": a.Revisions,
		"restore":   a.Restore,
	}

	for {
		printlnFn(fmt.Sprintf("shelf %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		h, ok := handlers[cmd]
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := h(ctx, args); err != nil {
			printlnFn("error:", err.Error())
		}
	}
}
