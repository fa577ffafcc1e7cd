package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pipelined/patchbay"
	"github.com/pipelined/patchbay/config"
	"github.com/pipelined/patchbay/engine"
	"github.com/pipelined/patchbay/engine/memory"
	"github.com/pipelined/patchbay/log"
	"github.com/pipelined/patchbay/metric"
	"github.com/pipelined/patchbay/node"
)

type demoCommand struct {
	env       stringList
	chain     stringList
	wav       string
	frequency float64
}

func (cmd *demoCommand) Name() string {
	return "demo"
}

func (cmd *demoCommand) Help() string {
	return "Wire an oscillator through an effect chain into the destination"
}

func (cmd *demoCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.env, "env", "semicolon separated .env files to load settings from")
	fs.Var(&cmd.chain, "chain", "semicolon separated effect types to wire in order (required)")
	fs.StringVar(&cmd.wav, "wav", "", "wav file to play into the chain")
	fs.Float64Var(&cmd.frequency, "frequency", 440, "oscillator frequency")
}

func (cmd *demoCommand) Run(out io.Writer) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	cfg, err := config.Load(cmd.env...)
	if err != nil {
		return err
	}
	log.SetDebug(cfg.Debug)

	var e *memory.Engine
	open := func() (engine.Context, error) {
		e = memory.New(memory.WithSampleRate(cfg.SampleRate), memory.WithLatencyHint(cfg.LatencyHint))
		return e, nil
	}
	g := patchbay.New(
		open,
		patchbay.WithLogger(log.GetLogger()),
		patchbay.WithPermissionTimeout(cfg.PermissionTimeout),
	)
	defer g.Close()

	osc, err := g.AddNode(node.Oscillator, map[string]float64{"frequency": cmd.frequency})
	if err != nil {
		return err
	}
	ids := []string{osc}
	for _, t := range cmd.chain {
		id, err := g.AddNode(node.Type(t), nil)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	ids = append(ids, node.DestinationID)

	ctx := context.Background()
	for i := 1; i < len(ids); i++ {
		if _, err := g.AddConnection(ctx, ids[i-1], node.OutputPort, ids[i], node.InputPort); err != nil {
			return err
		}
	}
	if cmd.wav != "" {
		player, err := g.AddNode(node.FileInput, nil)
		if err != nil {
			return err
		}
		if err := g.LoadFile(player, cmd.wav); err != nil {
			return err
		}
		if _, err := g.AddConnection(ctx, player, node.OutputPort, ids[1], node.InputPort); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Engine: %v at %d Hz, %s latency\n", g.EngineState(), e.SampleRate(), e.LatencyHint())
	for _, c := range g.Connections() {
		fmt.Fprintf(out, "Connection %s: %s.%s -> %s.%s\n", c.ID, c.SourceID, c.SourceOutput, c.TargetID, c.TargetInput)
	}
	for _, n := range g.Nodes() {
		b, ok := g.Binding(n.ID)
		if !ok {
			continue
		}
		roles := make([]string, 0, len(b.Stages))
		for _, s := range b.Stages {
			roles = append(roles, string(s.Role))
		}
		fmt.Fprintf(out, "Binding %s (%s): %s\n", n.ID, n.Type, strings.Join(roles, " -> "))
	}
	all := metric.GetAll()
	types := make([]string, 0, len(all))
	for t := range all {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "Metrics %s: %v\n", t, all[t])
	}
	return nil
}

// Validate checks required flags and effect types.
func (cmd *demoCommand) Validate() error {
	var message []string
	if len(cmd.chain) == 0 {
		message = append(message, "Missing -chain required flag")
	}
	for _, t := range cmd.chain {
		switch nt := node.Type(t); {
		case !nt.Valid():
			message = append(message, fmt.Sprintf("Unknown effect type %q", t))
		case len(nt.Inputs()) == 0 || len(nt.Outputs()) == 0 || nt.Reserved():
			message = append(message, fmt.Sprintf("Type %q cannot be chained", t))
		}
	}
	if len(message) != 0 {
		return fmt.Errorf("%s", strings.Join(message, "\n"))
	}
	return nil
}
