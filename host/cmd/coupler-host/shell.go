package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"gocoupler/host/link"
	"gocoupler/host/network"
	"gocoupler/host/telemetry"
	"gocoupler/host/tuner"
	"gocoupler/protocol"
)

const (
	linkKey     = "$link"
	shellPrompt = "coupler > "
	watchLimit  = 10 * time.Second
)

// shellLink is what the shell commands need from the device link
type shellLink interface {
	SendMatrix(ctx context.Context, m [][]bool) (*link.Applied, error)
	StartFrequency(ctx context.Context) error
	StopFrequency(ctx context.Context) error
}

type shellState struct {
	link     shellLink
	pub      *telemetry.Publisher
	readings <-chan link.Reading
}

func stateFrom(c *ishell.Context) *shellState {
	return c.Get(linkKey).(*shellState)
}

var (
	matrixCmd = ishell.Cmd{
		Name:    "matrix",
		Aliases: []string{"m"},
		Help:    "ROWS | -net FILE  apply a matrix, e.g. matrix 1,0;0,1",
		Func: func(c *ishell.Context) {
			m, err := matrixFromArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			st := stateFrom(c)
			applied, err := st.link.SendMatrix(context.Background(), m)
			if err != nil {
				c.Err(err)
				return
			}
			for _, row := range applied.Echo {
				c.Println(formatRow(row))
			}
			c.Println("ACK")
			if st.pub != nil {
				if err := st.pub.PublishMatrix(applied); err != nil {
					c.Println("mqtt:", err)
				}
			}
		},
	}

	netCmd = ishell.Cmd{
		Name: "net",
		Help: "FILE  show a saved coupling network and its matrix",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: net FILE%s", network.FileExt))
				return
			}
			n, err := network.LoadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			for _, node := range n.Nodes {
				if node.Frequency != nil {
					c.Printf("node %d  %.2f Hz\n", node.ID, *node.Frequency)
				} else {
					c.Printf("node %d\n", node.ID)
				}
			}
			for _, e := range n.Edges {
				arrow := "->"
				if e.Bidirectional {
					arrow = "<->"
				}
				c.Printf("edge %d %s %d\n", e.Start, arrow, e.End)
			}
			m, err := n.Matrix()
			if err != nil {
				c.Err(err)
				return
			}
			for _, row := range m {
				c.Println(formatRow(row))
			}
		},
	}

	freqCmd = ishell.Cmd{
		Name:    "freq",
		Aliases: []string{"f"},
		Help:    "start|stop  switch frequency measurement mode",
		Func: func(c *ishell.Context) {
			st := stateFrom(c)
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: freq start|stop"))
				return
			}
			var err error
			switch c.Args[0] {
			case "start":
				err = st.link.StartFrequency(context.Background())
			case "stop":
				err = st.link.StopFrequency(context.Background())
			default:
				err = fmt.Errorf("unknown freq action %q", c.Args[0])
			}
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	watchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[N] [-target HZ [-range HZ]]  print the next N frequency readings (default 10)",
		Func: func(c *ishell.Context) {
			opts, err := parseWatchArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			st := stateFrom(c)
			since := time.Now()
			timeout := time.After(watchLimit)
			for i := 0; i < opts.count; {
				select {
				case rd, ok := <-st.readings:
					if !ok {
						c.Err(link.ErrClosed)
						return
					}
					// Readings buffered while nobody was watching are stale
					if rd.At.Before(since) {
						continue
					}
					i++
					if opts.tuner != nil {
						c.Printf("%s  %s\n", rd.At.Format("15:04:05.000"), opts.tuner.Compare(rd.Hz))
					} else {
						c.Printf("%s  %.2f Hz\n", rd.At.Format("15:04:05.000"), rd.Hz)
					}
				case <-timeout:
					c.Err(fmt.Errorf("no readings for %s, is frequency mode on?", watchLimit))
					return
				}
			}
		},
	}

	quitCmd = ishell.Cmd{
		Name:    "quit",
		Aliases: []string{"q"},
		Help:    "leave the shell",
		Func: func(c *ishell.Context) {
			c.Stop()
		},
	}
)

func newShell(l shellLink, pub *telemetry.Publisher, readings <-chan link.Reading) *ishell.Shell {
	sh := ishell.New()
	sh.Set(linkKey, &shellState{link: l, pub: pub, readings: readings})
	sh.SetPrompt(shellPrompt)
	for _, cmd := range []*ishell.Cmd{&matrixCmd, &netCmd, &freqCmd, &watchCmd, &quitCmd} {
		sh.AddCmd(cmd)
	}
	return sh
}

// matrixFromArgs reads "1,0;0,1" shorthand or "-net FILE"
func matrixFromArgs(args []string) ([][]bool, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: matrix 1,0;0,1 | matrix -net FILE%s", network.FileExt)
	}
	if args[0] == "-net" || args[0] == "--net" {
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: matrix -net FILE%s", network.FileExt)
		}
		n, err := network.LoadFile(args[1])
		if err != nil {
			return nil, err
		}
		return n.Matrix()
	}
	return protocol.ParseMatrixText(strings.Join(args, ""))
}

type watchOptions struct {
	count int
	tuner *tuner.Tuner
}

// parseWatchArgs accepts the count and flags in either order
func parseWatchArgs(args []string) (watchOptions, error) {
	opts := watchOptions{count: 10}
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	target := fs.Float64("target", 0, "target frequency in Hz")
	window := fs.Float64("range", tuner.DefaultRange, "tuning window in Hz")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return opts, fmt.Errorf("bad count %q", rest[0])
		}
		opts.count = n
		if err := fs.Parse(rest[1:]); err != nil {
			return opts, err
		}
		if len(fs.Args()) > 0 {
			return opts, fmt.Errorf("unexpected argument %q", fs.Args()[0])
		}
	}
	if *target != 0 {
		t, err := tuner.New(*target, *window)
		if err != nil {
			return opts, err
		}
		opts.tuner = t
	}
	return opts, nil
}

func formatRow(row []bool) string {
	cells := make([]string, len(row))
	for i, v := range row {
		if v {
			cells[i] = "1"
		} else {
			cells[i] = "0"
		}
	}
	return strings.Join(cells, " ")
}
