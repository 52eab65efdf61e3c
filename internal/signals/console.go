package signals

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"golang.org/x/term"
)

// Interactive reports whether f is a terminal a console can attach to.
func Interactive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// DebugConsole is a small line-oriented console for inspecting a running
// server. Status prints whatever the owning supervisor reports.
type DebugConsole struct {
	Prompt string
	Status func() string
}

const consoleHelp = `commands:
  help        show this message
  status      instance status
  goroutines  dump goroutine stacks
  gc          run the garbage collector
  mem         memory statistics
  exit        leave the console and keep serving`

// Run reads commands until "exit", EOF or ctx is done. When in is a
// terminal it is switched to raw mode and given line editing.
func (c *DebugConsole) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	prompt := c.Prompt
	if prompt == "" {
		prompt = "warden> "
	}
	readLine, w, restore, err := lineReader(in, out, prompt)
	if err != nil {
		return err
	}
	defer restore()

	_, _ = fmt.Fprintln(w, "Type 'help' for commands, 'exit' to resume.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		cmd := strings.TrimSpace(line)
		switch cmd {
		case "":
		case "help":
			_, _ = fmt.Fprintln(w, consoleHelp)
		case "status":
			if c.Status != nil {
				_, _ = fmt.Fprintln(w, c.Status())
			}
		case "goroutines":
			_, _ = fmt.Fprintf(w, "%d goroutines\n", runtime.NumGoroutine())
			_ = pprof.Lookup("goroutine").WriteTo(w, 1)
		case "gc":
			runtime.GC()
			_, _ = fmt.Fprintln(w, "gc done")
		case "mem":
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			_, _ = fmt.Fprintf(w, "alloc=%d sys=%d heap_objects=%d num_gc=%d\n", m.Alloc, m.Sys, m.HeapObjects, m.NumGC)
		case "exit", "quit":
			return nil
		default:
			_, _ = fmt.Fprintf(w, "unknown command %q, try 'help'\n", cmd)
		}
	}
}

func lineReader(in io.Reader, out io.Writer, prompt string) (func() (string, error), io.Writer, func(), error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("console raw mode: %w", err)
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{f, out}, prompt)
		return t.ReadLine, t, func() { _ = term.Restore(int(f.Fd()), state) }, nil
	}
	sc := bufio.NewScanner(in)
	read := func() (string, error) {
		_, _ = fmt.Fprint(out, prompt)
		if sc.Scan() {
			return sc.Text(), nil
		}
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return read, out, func() {}, nil
}
