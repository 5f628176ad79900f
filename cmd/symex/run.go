package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/segexec/symex"
	"github.com/segexec/symex/solver/naive"
	"github.com/segexec/symex/z3"
)

// RunCommand represents the "run" subcommand, which drives symbolic
// execution over a prepared instruction table read from disk and prints
// the test case recovered from every terminated state.
type RunCommand struct{}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand() *RunCommand {
	return &RunCommand{}
}

// Run executes the "run" subcommand.
func (cmd *RunCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("symex-run", flag.ContinueOnError)
	entry := fs.String("entry", "", "entry function name (defaults to the table's Entry field)")
	solverName := fs.String("solver", "z3", "constraint solver to use: z3 or naive")
	searcherName := fs.String("searcher", "dfs", "state scheduling order: dfs, bfs, or random")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() != 1 {
		return fmt.Errorf("exactly one prepared instruction table (JSON) required")
	}

	log.SetFlags(0)
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}

	table, err := loadTable(fs.Arg(0))
	if err != nil {
		return err
	}

	var s symex.Solver
	switch *solverName {
	case "z3":
		z3Solver := z3.NewSolver()
		defer z3Solver.Close()
		s = z3Solver
	case "naive":
		s = naive.NewSolver(1, 0)
	default:
		return fmt.Errorf("unknown solver: %s", *solverName)
	}

	var searcher symex.Searcher
	switch *searcherName {
	case "dfs":
		searcher = symex.NewDFSSearcher()
	case "bfs":
		searcher = symex.NewBFSSearcher()
	case "random":
		searcher = symex.NewRandomSearcher(1)
	default:
		return fmt.Errorf("unknown searcher: %s", *searcherName)
	}

	e := symex.NewExecutor(table, s, searcher, nil)
	e.TestCase = symex.TestCaseHandlerFunc(cmd.printTestCase)

	initial, err := e.NewInitialState(*entry)
	if err != nil {
		return err
	}

	stop := symex.InstallSignalHandler()
	defer stop()

	return e.Run(ctx, initial)
}

func (cmd *RunCommand) printTestCase(tc *symex.TestCase) {
	fmt.Printf("state#%d", tc.StateID)
	if tc.Termination != nil {
		fmt.Printf(" terminated: %s", tc.Termination.Error())
	}
	fmt.Println()
	for name, value := range tc.Assignments {
		fmt.Printf("  %s = %x\n", name, value)
	}
}

// loadTable reads a prepared instruction table from a JSON file. This
// module consumes the table as already built; it does not parse any
// source or bitcode format itself, so JSON is simply the plain encoding
// of inst.Table's exported fields.
func loadTable(path string) (*symex.Table, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table := symex.NewTable()
	if err := json.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	return table, nil
}

func (cmd *RunCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: symex run [arguments] <table.json>

Arguments:

	-entry NAME
	    Entry function name (defaults to the table's own Entry field).

	-solver z3|naive
	    Constraint solver backend (default: z3).

	-searcher dfs|bfs|random
	    State scheduling order (default: dfs).

	-v
	    Enable verbose logging.
`[1:])
}
