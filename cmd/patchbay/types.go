package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pipelined/patchbay/node"
)

type typesCommand struct {
	params bool
}

func (cmd *typesCommand) Name() string {
	return "types"
}

func (cmd *typesCommand) Help() string {
	return "Show the list of node types"
}

func (cmd *typesCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.params, "params", false, "show parameters of every type")
}

func (cmd *typesCommand) Run(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range node.Types() {
		fmt.Fprintf(w, "%s\t%s\tin: %d\tout: %d\n", t, t.Label(), len(t.Inputs()), len(t.Outputs()))
		if !cmd.params {
			continue
		}
		for _, p := range node.Schema(t) {
			fmt.Fprintf(w, "\t%s\t%v %s\t[%v, %v]\n", p.Name, p.Default, p.Unit, p.Min, p.Max)
		}
	}
	return w.Flush()
}
