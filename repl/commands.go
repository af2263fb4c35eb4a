package main

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/learn-decentralized-systems/toytlv"
	"github.com/packline/packline/capture"
	"github.com/packline/packline/colorize"
	"github.com/packline/packline/columns"
)

var HelpCreate = errors.New("create path/to/capture")

func (repl *REPL) CommandCreate(args []string) (err error) {
	if len(args) != 1 {
		return HelpCreate
	}
	if repl.store != nil {
		_ = repl.CommandClose(nil)
	}
	st, err := capture.Create(args[0], capture.Options{})
	if err != nil {
		return
	}
	return repl.attach(st)
}

var HelpOpen = errors.New("open path/to/capture")

func (repl *REPL) CommandOpen(args []string) (err error) {
	if len(args) != 1 {
		return HelpOpen
	}
	if repl.store != nil {
		_ = repl.CommandClose(nil)
	}
	st, err := capture.Open(args[0], capture.Options{})
	if err != nil {
		return
	}
	return repl.attach(st)
}

func (repl *REPL) CommandClose(args []string) (err error) {
	if repl.sess != nil {
		_ = repl.sess.Close()
		repl.sess = nil
	}
	if repl.store != nil {
		err = repl.store.Close()
		repl.store = nil
		fmt.Println("capture closed")
	}
	return
}

var protocols = []string{"TCP", "UDP", "DNS", "HTTP", "TLS"}
var hosts = []string{"10.0.0.1", "10.0.0.2", "192.168.1.7", "172.16.0.3", "8.8.8.8"}

var HelpGen = errors.New("gen 100")

// CommandGen appends n sample TLV records to the open capture.
func (repl *REPL) CommandGen(args []string) (err error) {
	if repl.store == nil {
		return ErrNoCapture
	}
	if len(args) != 1 {
		return HelpGen
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return HelpGen
	}
	for i := 0; i < n; i++ {
		src := hosts[rand.Intn(len(hosts))]
		dst := hosts[rand.Intn(len(hosts))]
		proto := protocols[rand.Intn(len(protocols))]
		stream := rand.Intn(8)
		payload := toytlv.Concat(
			toytlv.Record('S', []byte(src)),
			toytlv.Record('D', []byte(dst)),
			toytlv.Record('O', []byte(proto)),
			toytlv.Record('I', []byte(fmt.Sprintf("%s %s > %s seq=%d", proto, src, dst, i))),
			toytlv.Record('F', []byte(fmt.Sprintf("stream.id=%d", stream))),
		)
		meta, e := repl.store.Add(time.Now(), payload)
		if e != nil {
			return e
		}
		m := meta
		repl.sess.Append(&m)
	}
	fmt.Printf("%d records added, %d total\n", n, repl.sess.Len())
	return
}

var HelpCols = errors.New("cols num,time,src,dst,proto,len,info")

func (repl *REPL) CommandCols(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	if len(args) != 1 {
		return HelpCols
	}
	desc, err := columns.ParseSpec(args[0])
	if err != nil {
		return
	}
	if err = repl.sess.SetColumns(desc); err != nil {
		return
	}
	fmt.Printf("%d columns, generation %d\n", len(desc), repl.sess.Schema().Generation())
	return
}

func (repl *REPL) CommandShow(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	from, count := 0, 20
	if len(args) > 0 {
		if from, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if count, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}
	sch := repl.sess.Schema()
	for c := 0; c < sch.Count(); c++ {
		fmt.Printf("%-16s", sch.Column(c).Title)
	}
	fmt.Println()
	for i := from; i < from+count && i < repl.sess.Len(); i++ {
		row := repl.sess.Row(i)
		for c := 0; c < sch.Count(); c++ {
			fmt.Printf("%-16s", row.ColumnText(repl.sess, c, repl.color))
		}
		if repl.color && row.Meta().ColorClass != "" {
			fmt.Printf("  <%s>", row.Meta().ColorClass)
		}
		fmt.Println()
	}
	return
}

var HelpColor = errors.New("color on|off")

func (repl *REPL) CommandColor(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	if len(args) != 1 {
		return HelpColor
	}
	switch args[0] {
	case "on":
		repl.color = true
	case "off":
		repl.color = false
	default:
		return HelpColor
	}
	repl.sess.ResetColorization()
	fmt.Printf("colorization %s\n", args[0])
	return
}

var HelpRule = errors.New("rule proto DNS warn")

func (repl *REPL) CommandRule(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	if len(args) != 3 {
		return HelpRule
	}
	engine := repl.sess.Colorizer()
	engine.SetRules(append(engine.Rules(), colorize.Rule{
		Name:  args[0] + "==" + args[1],
		Field: args[0],
		Value: args[1],
		Class: args[2],
	}))
	repl.sess.ResetColorization()
	fmt.Printf("%d rules\n", len(engine.Rules()))
	return
}

func (repl *REPL) CommandFlows(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	n := 10
	if len(args) > 0 {
		if n, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	table := repl.sess.Flows()
	fmt.Printf("%d conversations, top packet counts: %v\n", table.Len(), table.TopCounts(n))
	return
}

func (repl *REPL) CommandStats(args []string) (err error) {
	if repl.sess == nil {
		return ErrNoCapture
	}
	pool := repl.sess.Pool()
	fmt.Printf("rows %d, interned %d strings / %d bytes, %d hits, %d flows\n",
		repl.sess.Len(), pool.Unique(), pool.Bytes(), pool.Hits(), repl.sess.Flows().Len())
	return
}
