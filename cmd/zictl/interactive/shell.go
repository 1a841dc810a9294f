// Package interactive provides the zictl shell, an interactive prompt
// over the parameter tree of one connected device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/session"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// ConnectFunc connects another device of the same data server.
type ConnectFunc func(ctx context.Context, serial string) (*session.Device, error)

// Config configures a Shell.
type Config struct {
	// Device is the device the shell starts on.
	Device *session.Device

	// Connect is used by the "use" command. Nil disables it.
	Connect ConnectFunc

	// Timeout bounds one command. Zero means no limit.
	Timeout time.Duration

	// MaxChars cuts snapshot lines, -1 never cuts.
	MaxChars int

	// HistoryFile keeps the command history between runs (optional).
	HistoryFile string
}

// Shell is the interactive prompt.
type Shell struct {
	cfg       Config
	dev       *session.Device
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	cwd       []string

	rl  *readline.Instance
	out io.Writer
}

// New creates a shell reading from the terminal.
func New(cfg Config) (*Shell, error) {
	s := newShell(cfg, nil)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    &completer{shell: s},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	return s, nil
}

func newShell(cfg Config, out io.Writer) *Shell {
	s := &Shell{cfg: cfg, formatter: inspect.NewFormatter(), out: out}
	s.setDevice(cfg.Device)
	return s
}

func (s *Shell) setDevice(dev *session.Device) {
	s.dev = dev
	s.inspector = inspect.NewInspector(dev.Root())
	s.cwd = nil
	if s.rl != nil {
		s.rl.SetPrompt(s.prompt())
	}
}

func (s *Shell) prompt() string {
	return fmt.Sprintf("%s:/%s> ", s.dev.Serial(), strings.Join(s.cwd, "/"))
}

// Run starts the interactive command loop. It returns when the user quits
// or ctx ends.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	fmt.Fprintf(s.out, "connected to %s (%s), type 'help' for commands\n", s.dev.Serial(), s.dev.Type())
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if s.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "pwd":
		fmt.Fprintf(s.out, "/%s/%s\n", s.dev.Serial(), strings.Join(s.cwd, "/"))
	case "cd":
		err = s.cmdCd(args)
	case "ls", "l":
		err = s.cmdLs(args)
	case "tree", "t":
		err = s.cmdTree(ctx, args)
	case "get", "g":
		err = s.cmdGet(ctx, args)
	case "set", "s":
		err = s.cmdSet(ctx, args)
	case "info", "i":
		err = s.cmdInfo(ctx, args)
	case "snapshot", "snap":
		err = s.cmdSnapshot(ctx, args)
	case "use":
		err = s.cmdUse(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Commands:
  Navigation:
    pwd                  - Show the current node
    cd <path>            - Change the current node ("..", "/" allowed)
    ls [path]            - List child nodes

  Parameters:
    get <path>           - Read a parameter
    set <path> <value>   - Write a parameter, prints the acknowledged value
    info <path>          - Show parameter metadata and value
    tree [path] [-v]     - Show the subtree, -v reads values
    snapshot [path]      - Read the subtree in one bulk read

  Devices:
    use <serial>         - Switch to another device

  General:
    help                 - Show this help
    quit                 - Exit

  Path Format:
    sigouts/0/on, sigouts[0].on or /dev8000/sigouts/0/on`)
}

// resolve turns a command argument into a path below the current device.
func (s *Shell) resolve(arg string) (*inspect.Path, error) {
	serial := s.dev.Serial()
	if arg == "" {
		return &inspect.Path{Device: serial, Segments: slices.Clone(s.cwd)}, nil
	}
	if strings.HasPrefix(arg, "/") {
		p, err := inspect.ParsePath(arg)
		if err != nil {
			return nil, err
		}
		if p.Device != "" && p.Device != serial {
			return nil, fmt.Errorf("%s is not below %s, use 'use %s' first", arg, serial, p.Device)
		}
		p.Device = serial
		return p, nil
	}

	segs := slices.Clone(s.cwd)
	for _, part := range strings.Split(arg, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
			continue
		}
		p, err := inspect.ParsePath(part)
		if err != nil {
			return nil, err
		}
		if p.Device != "" {
			segs = append(segs, p.Device)
		}
		segs = append(segs, p.Segments...)
	}
	if len(segs) == 0 {
		segs = nil
	}
	return &inspect.Path{Device: serial, Segments: segs, Raw: arg}, nil
}

func (s *Shell) cmdCd(args []string) error {
	arg := "/"
	if len(args) > 0 {
		arg = args[0]
	}
	p, err := s.resolve(arg)
	if err != nil {
		return err
	}
	n, err := s.inspector.Find(p)
	if err != nil {
		return err
	}
	if _, ok := n.(*model.Parameter); ok {
		return fmt.Errorf("%s is a parameter", arg)
	}
	s.cwd = p.Segments
	if s.rl != nil {
		s.rl.SetPrompt(s.prompt())
	}
	return nil
}

func (s *Shell) cmdLs(args []string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	p, err := s.resolve(arg)
	if err != nil {
		return err
	}
	names, err := s.inspector.List(p)
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, s.formatter.FormatNames(names))
	return nil
}

func (s *Shell) cmdTree(ctx context.Context, args []string) error {
	values := false
	arg := ""
	for _, a := range args {
		if a == "-v" || a == "--values" {
			values = true
			continue
		}
		arg = a
	}
	p, err := s.resolve(arg)
	if err != nil {
		return err
	}
	info, err := s.inspector.Inspect(ctx, p, inspect.InspectOptions{Values: values})
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, s.formatter.FormatTree(info))
	return nil
}

func (s *Shell) cmdGet(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: get <path>")
		fmt.Fprintln(s.out, "  Example: get oscs[0].freq")
		return nil
	}
	p, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	param, err := s.inspector.Parameter(p)
	if err != nil {
		return err
	}
	v, err := param.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %s\n", inspect.Expression(p.Segments), s.formatter.FormatValue(v, param.Metadata().Unit))
	return nil
}

func (s *Shell) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: set <path> <value>")
		fmt.Fprintln(s.out, "  Example: set oscs[0].freq 2.5e6")
		return nil
	}
	p, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	value := inspect.ParseValue(strings.Join(args[1:], " "))
	ack, err := s.inspector.Write(ctx, p, value)
	if err != nil {
		return err
	}
	param, err := s.inspector.Parameter(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %s\n", inspect.Expression(p.Segments), s.formatter.FormatValue(ack, param.Metadata().Unit))
	return nil
}

func (s *Shell) cmdInfo(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: info <path>")
		return nil
	}
	p, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	info, err := s.inspector.Inspect(ctx, p, inspect.InspectOptions{Values: true, Depth: 1})
	if err != nil {
		return err
	}
	if info.Kind != model.KindParameter {
		fmt.Fprint(s.out, s.formatter.FormatTree(info))
		return nil
	}
	fmt.Fprintln(s.out, s.formatter.FormatParameter(info))
	return nil
}

func (s *Shell) cmdSnapshot(ctx context.Context, args []string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	p, err := s.resolve(arg)
	if err != nil {
		return err
	}
	n, err := s.inspector.Find(p)
	if err != nil {
		return err
	}
	return snapshot.PrintReadable(ctx, s.out, n, true, s.cfg.MaxChars)
}

func (s *Shell) cmdUse(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: use <serial>")
		return nil
	}
	if s.cfg.Connect == nil {
		return errors.New("switching devices is not available")
	}
	dev, err := s.cfg.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	s.setDevice(dev)
	fmt.Fprintf(s.out, "connected to %s (%s)\n", dev.Serial(), dev.Type())
	return nil
}

// commands lists the command names offered by completion.
var commands = []string{"cd", "exit", "get", "help", "info", "ls", "pwd", "quit", "set", "snapshot", "tree", "use"}

// completer completes command names and parameter expressions below the
// current node.
type completer struct {
	shell *Shell
}

// Do implements readline.AutoCompleter.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	head := string(line[:pos])
	fields := strings.Fields(head)
	word := ""
	if len(fields) > 0 && !strings.HasSuffix(head, " ") {
		word = fields[len(fields)-1]
	}

	var candidates []string
	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		candidates = commands
	} else {
		candidates = c.shell.complete(word)
	}

	var out [][]rune
	for _, cand := range candidates {
		if strings.HasPrefix(cand, strings.ToLower(word)) {
			out = append(out, []rune(cand[len(word):]+" "))
		}
	}
	return out, len([]rune(word))
}

// complete returns the parameter expressions below the current node that
// start with prefix.
func (s *Shell) complete(prefix string) []string {
	n, err := s.inspector.Find(&inspect.Path{Device: s.dev.Serial(), Segments: s.cwd})
	if err != nil {
		return nil
	}
	return inspect.NewInspector(n).Complete(prefix)
}
