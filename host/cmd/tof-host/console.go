package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

// console runs the interactive commands against a backend
type console struct {
	b   backend
	out io.Writer
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  measure      single-shot measurement on every sensor")
	fmt.Fprintln(c.out, "  start [ms]   stream continuous results, optionally at a given period")
	fmt.Fprintln(c.out, "  stop         stop streaming")
	fmt.Fprintln(c.out, "  status       sensor and MCU status")
	fmt.Fprintln(c.out, "  dict         MCU dictionary summary")
	fmt.Fprintln(c.out, "  quit         exit")
}

// execute runs one command line and reports whether the console should exit
func (c *console) execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		c.printHelp()

	case "measure", "m":
		readings, err := c.b.Measure()
		for _, r := range readings {
			fmt.Fprintln(c.out, r)
		}
		return false, err

	case "start":
		var period uint16
		if len(fields) > 1 {
			v, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				return false, fmt.Errorf("bad period %q: %w", fields[1], err)
			}
			period = uint16(v)
		}
		return false, c.b.Start(period, func(r reading) {
			fmt.Fprintln(c.out, r)
		})

	case "stop":
		return false, c.b.Stop()

	case "status":
		return false, c.b.Status(c.out)

	case "dict":
		return false, c.b.Dictionary(c.out)

	default:
		return false, fmt.Errorf("unknown command %q, type help for a list", fields[0])
	}
	return false, nil
}

// run reads commands until quit or end of input
func (c *console) run(rl *readline.Instance) error {
	c.printHelp()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}
		quit, err := c.execute(line)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}
