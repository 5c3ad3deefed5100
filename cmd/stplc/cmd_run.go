package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stlang/internal/config"
	"stlang/internal/control"
	"stlang/internal/eval"
	"stlang/internal/lower"
	"stlang/internal/retain"
	"stlang/internal/runtime"
	"stlang/internal/scheduler"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

var (
	runProject   string
	runCycle     time.Duration
	runWarmStart bool
	runOnce      bool
)

var runCmd = &cobra.Command{
	Use:   "run [file...]",
	Short: "Run a resource's deterministic cycle loop standalone",
	Long: `run loads the given sources as a single resource's global
program set and drives its scheduler cycle loop directly, without an
editor or a separately compiled bytecode container. Every PROGRAM
body in the sources runs as a background program; CONFIGURATION/TASK
mappings are not read.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "project file (stproject.yaml) for retain/control/logging settings")
	runCmd.Flags().DurationVar(&runCycle, "cycle", 10*time.Millisecond, "fixed cycle tick")
	runCmd.Flags().BoolVar(&runWarmStart, "warm", false, "warm-start RETAIN globals from the retain store")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run exactly one cycle and exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	var proj *config.Project
	if runProject != "" {
		p, err := config.Load(runProject)
		if err != nil {
			return err
		}
		proj = p
	}

	reg := eval.NewRegistry()
	runtime.RegisterStandardFBs(reg)

	var globalTable *symbols.Table
	var units []*lower.Unit
	var programs []scheduler.ProgramRef

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(data)
		file := symbols.FileID(path)
		root, diags := syntax.Parse(src)
		if len(diags) > 0 {
			return fmt.Errorf("run: %s has %d syntax error(s), run `stplc check` first", path, len(diags))
		}
		table := symbols.Build(file, root)
		unit, lowerDiags := lower.Lower(file, root, table, src)
		if len(lowerDiags) > 0 {
			return fmt.Errorf("run: %s has %d lowering error(s)", path, len(lowerDiags))
		}
		reg.AddUnit(unit)
		units = append(units, unit)
		if globalTable == nil {
			globalTable = table
		}
	}

	var store *retain.Store
	if proj != nil && proj.Retain.Path != "" {
		s, err := retain.Open(proj.Retain, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	res := runtime.NewResource("Main", reg, [3]int{64, 64, 64}, eval.DefaultPolicy(), time.Now, store, nil)
	if globalTable != nil {
		if err := res.InitGlobals(globalTable, runWarmStart); err != nil {
			return err
		}
	}

	for _, u := range units {
		for _, pou := range u.POUs {
			if pou.Kind != symbols.KindProgram {
				continue
			}
			p := pou
			programs = append(programs, scheduler.ProgramRef{Name: p.Name, POU: &p, Frame: res.Globals})
		}
	}
	if len(programs) == 0 {
		return fmt.Errorf("run: no PROGRAM declarations found in the given sources")
	}

	sched := scheduler.NewResource(res, nil, programs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if proj != nil && proj.Runtime.Address != "" {
		srv := control.NewServer(sched, nil, proj.Runtime.AuthToken, nil)
		ln, err := control.Listen(network(proj.Runtime.Network), proj.Runtime.Address)
		if err != nil {
			return err
		}
		defer ln.Close()
		go srv.Serve(ln)
		fmt.Printf("control endpoint listening on %s %s\n", proj.Runtime.Network, proj.Runtime.Address)
	}

	prog := &scheduler.Program{Resources: []*scheduler.Resource{sched}}
	tick := runCycle
	if runOnce {
		tick = 0
	}
	if err := prog.Run(ctx, tick); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func network(n string) string {
	if n == "" {
		return "tcp"
	}
	return n
}
