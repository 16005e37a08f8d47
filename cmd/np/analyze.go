package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/planner"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

// newService builds a planner for one-shot CLI commands. Alerts are not
// sent from the CLI.
func newService(cfg *config.Config, gormDB *gorm.DB) *planner.Service {
	return planner.New(planner.Deps{
		Units:     workunit.NewStore(gormDB),
		Templates: template.NewStore(gormDB),
		Runs:      planner.NewRunStore(gormDB),
		Simulator: simulation.New(simulation.LimitsFromConfig(cfg.Simulation), zap.NewNop()),
		Timeout:   cfg.Simulation.Timeout,
	})
}

func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "analyze <project-id>",
		Short: "Show the critical path and schedule of a project",
		Long:  "Builds the project's dependency graph and prints every work unit's earliest/latest start and finish, its slack and whether it is on the critical path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, configPath, format, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	addOutputFlag(cmd, &format)
	return cmd
}

func runAnalyze(cmd *cobra.Command, configPath, format, projectID string) error {
	out := cmd.OutOrStdout()
	asJSON, err := useJSON(out, format)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}

	w, err := newService(cfg, gormDB).GetProjectWorkflow(cmd.Context(), company.ID, projectID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, w)
	}

	fmt.Fprintf(out, "Project %s (%s)\n", w.Project.Name, w.Project.ID)
	cp := w.Plan().CriticalPath()
	tw := newTable(out)
	tw.AppendHeader(table.Row{"Work unit", "Duration", "ES", "EF", "LS", "LF", "Slack", "Critical"})
	for _, id := range cp.TopoOrder {
		s := cp.Schedule[id]
		crit := ""
		if s.Critical {
			crit = "*"
		}
		tw.AppendRow(table.Row{s.Name, s.Duration, s.EarliestStart, s.EarliestFinish, s.LatestStart, s.LatestFinish, s.Slack, crit})
	}
	tw.AppendFooter(table.Row{"Total", cp.TotalDuration})
	tw.Render()

	m := w.Metrics
	fmt.Fprintf(out, "\n%d work units, %d completed, %d in progress, %d blocked\n",
		m.TotalWorkUnits, m.CompletedWorkUnits, m.InProgressWorkUnits, m.BlockedWorkUnits)
	fmt.Fprintf(out, "Completion %.1f%%, efficiency %.1f%%, %d dependencies\n",
		m.CompletionRate, m.Efficiency, m.DependencyCount)
	return nil
}

func newSimulateCmd() *cobra.Command {
	var (
		configPath  string
		format      string
		iterations  int
		variability float64
		confidence  float64
		target      float64
		seed        int64
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <project-id>",
		Short: "Run a Monte Carlo schedule simulation",
		Long: `Samples work unit durations around their estimates and reports the
completion time distribution, risk level and recommendations. With --save
the run is stored in the simulation history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := simulation.Params{
				Iterations:      iterations,
				Variability:     variability,
				ConfidenceLevel: confidence,
			}
			if cmd.Flags().Changed("target") {
				p.TargetDuration = &target
			}
			if cmd.Flags().Changed("seed") {
				p.Seed = &seed
			}
			return runSimulate(cmd, configPath, format, args[0], p, save)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to NitroPlanner config file")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "number of trials (default: simulation.default_iterations)")
	cmd.Flags().Float64Var(&variability, "variability", 0, "relative spread of sampled durations, in (0, 1)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence level, in [0.8, 0.99]")
	cmd.Flags().Float64Var(&target, "target", 0, "target completion time in hours")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for a reproducible run")
	cmd.Flags().BoolVar(&save, "save", false, "store the run in the simulation history")
	addOutputFlag(cmd, &format)
	return cmd
}

func runSimulate(cmd *cobra.Command, configPath, format, projectID string, p simulation.Params, save bool) error {
	out := cmd.OutOrStdout()
	asJSON, err := useJSON(out, format)
	if err != nil {
		return err
	}
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	company, err := defaultCompany(cfg, gormDB)
	if err != nil {
		return err
	}
	svc := newService(cfg, gormDB)

	if save {
		run, err := svc.RunMonteCarlo(cmd.Context(), company.ID, projectID, p)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, run)
		}
		fmt.Fprintf(out, "Stored run %s (%s risk)\n", run.ID, run.RiskLevel)
		renderStatistics(out, run.Results)
		return nil
	}

	res, err := svc.SimulateWorkflow(cmd.Context(), company.ID, projectID, p)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, res)
	}
	renderStatistics(out, res.Statistics)
	fmt.Fprintf(out, "\nRisk: %s (%s)\n", res.Risk.RiskLevel, res.Risk.Basis)
	for _, r := range res.Recommendations {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	return nil
}

func renderStatistics(out io.Writer, st simulation.Statistics) {
	tw := newTable(out)
	tw.AppendHeader(table.Row{"Statistic", "Hours"})
	tw.AppendRows([]table.Row{
		{"Mean", fmt.Sprintf("%.2f", st.Mean)},
		{"Median", fmt.Sprintf("%.2f", st.Median)},
		{"P80", fmt.Sprintf("%.2f", st.Percentiles.P80)},
		{"P90", fmt.Sprintf("%.2f", st.Percentiles.P90)},
		{"P95", fmt.Sprintf("%.2f", st.Percentiles.P95)},
		{"Min", fmt.Sprintf("%.2f", st.Min)},
		{"Max", fmt.Sprintf("%.2f", st.Max)},
		{"Std dev", fmt.Sprintf("%.2f", st.StdDev)},
	})
	tw.AppendFooter(table.Row{"Iterations", st.Iterations})
	tw.Render()
}
