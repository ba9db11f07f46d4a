package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anicolao/gofugue/internal/config"
	"github.com/anicolao/gofugue/internal/tui"
)

// commandList accumulates repeated -c flags; the statements run in order
// after the config file loads.
type commandList []string

func (c *commandList) String() string { return fmt.Sprint(*c) }

func (c *commandList) Set(v string) error {
	*c = append(*c, v)
	return nil
}

var (
	configFile = flag.String("f", "", "config file path")
	libDir     = flag.String("L", "", "library directory (default $TFLIBDIR)")
	noWorld    = flag.Bool("n", false, "do not connect to a default world")
	noLogin    = flag.Bool("l", false, "disable autologin")
	quiet      = flag.Bool("q", false, "quiet login")
	noVisual   = flag.Bool("v", false, "no visual mode (no alternate screen)")
	debug      = flag.Bool("d", false, "write a debug log")
	commands   commandList
)

func main() {
	flag.Var(&commands, "c", "command to run after startup (repeatable)")
	flag.Usage = usage
	flag.Parse()

	opts := tui.Options{
		ConfigFile: *configFile,
		LibDir:     *libDir,
		Commands:   commands,
		NoAutoWorld: *noWorld,
		NoLogin:    *noLogin,
		QuietLogin: *quiet,
		Debug:      *debug,
		TermType:   termType(),
	}

	switch flag.NArg() {
	case 0:
	case 1:
		opts.WorldName = flag.Arg(0)
	case 2:
		opts.Host = flag.Arg(0)
		opts.Port = flag.Arg(1)
	default:
		usage()
		os.Exit(1)
	}

	// A missing stdlib is a broken installation; fail before taking over
	// the terminal.
	lib := config.LibDir(opts.LibDir)
	if _, ok := config.StdlibPath(lib); !ok {
		fmt.Fprintf(os.Stderr, "gofugue: %s not found in %s (set TFLIBDIR or -L)\n", config.StdlibName, lib)
		os.Exit(1)
	}

	model := tui.NewModel(opts)

	progOpts := []tea.ProgramOption{}
	if !*noVisual {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, progOpts...)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "gofugue: %v\n", err)
		os.Exit(2)
	}
}

func termType() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return "gofugue"
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gofugue [options] [world | host port]

options:
  -f file   config file (default: ~/.tfrc, ~/tfrc, ./.tfrc, ./tfrc)
  -L dir    library directory (default $TFLIBDIR)
  -c cmd    run command after startup; repeatable, joined by %%;
  -n        do not connect to the default world
  -l        disable autologin
  -q        quiet login
  -v        no visual mode
  -d        write a debug log
`)
}
