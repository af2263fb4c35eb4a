// Interactive capture browser: open a pebble-backed capture, set up
// display columns, page through rendered rows.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"github.com/packline/packline"
	"github.com/packline/packline/capture"
	"github.com/packline/packline/colorize"
	"github.com/packline/packline/columns"
	"github.com/packline/packline/dissect"
)

const defaultColumns = "num,time,src,dst,proto,len,info"

type REPL struct {
	rl    *readline.Instance
	store *capture.Store
	sess  *packline.Session
	color bool
}

var ErrNoCapture = errors.New("no capture open")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("create"),
	readline.PcItem("open"),
	readline.PcItem("close"),

	readline.PcItem("gen"),
	readline.PcItem("cols"),
	readline.PcItem("show"),
	readline.PcItem("color"),
	readline.PcItem("rule"),
	readline.PcItem("flows"),
	readline.PcItem("stats"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".packline_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.sess != nil {
		_ = repl.sess.Close()
		repl.sess = nil
	}
	if repl.store != nil {
		_ = repl.store.Close()
		repl.store = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) attach(st *capture.Store) (err error) {
	repl.store = st
	repl.sess = packline.NewSession(st, dissect.NewTLV(nil), colorize.NewEngine(), packline.Options{})
	desc, err := columns.ParseSpec(defaultColumns)
	if err != nil {
		return
	}
	if err = repl.sess.SetColumns(desc); err != nil {
		return
	}
	n := repl.sess.Load(st)
	fmt.Printf("capture %s: %d records\n", st.ID(), n)
	return
}

func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	args := strings.Fields(line)
	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "create":
		err = repl.CommandCreate(args)
	case "open":
		err = repl.CommandOpen(args)
	case "close":
		err = repl.CommandClose(args)
	case "exit", "quit":
		_ = repl.CommandClose(nil)
		err = io.EOF
	case "gen":
		err = repl.CommandGen(args)
	case "cols":
		err = repl.CommandCols(args)
	case "show", "ls", "list":
		err = repl.CommandShow(args)
	case "color":
		err = repl.CommandColor(args)
	case "rule":
		err = repl.CommandRule(args)
	case "flows":
		err = repl.CommandFlows(args)
	case "stats":
		err = repl.CommandStats(args)
	case "help":
		fmt.Println(help)
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}
	if err == io.EOF {
		return err
	}
	if err != nil {
		fmt.Println(err.Error())
		err = nil
	}
	return
}

const help = `create <dir>             make a new capture store
open <dir>               open an existing capture store
gen <n>                  add n sample records
cols <spec>              set columns, e.g. num,time,src,dst,proto,len,info
                         or field:stream.id for custom field columns
show [from [count]]      render rows
color on|off             toggle row colorization
rule <field> <value> <class>   add a highlighting rule
flows [n]                top conversations by packet count
stats                    intern pool and flow table stats
close | exit`

func main() {
	repl := REPL{}
	if err := repl.Open(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer repl.Close()

	if len(os.Args) > 1 {
		if err := repl.CommandOpen(os.Args[1:2]); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	for {
		err := repl.REPL()
		if err == io.EOF {
			break
		}
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			break
		}
	}
}
