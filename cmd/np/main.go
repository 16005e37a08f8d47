package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/db"
	"github.com/nitroplanner/nitroplanner/internal/models"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "nitroplanner.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "np",
		Short: "NitroPlanner workflow engine",
		Long:  "NitroPlanner schedules manufacturing work units: dependency graphs, critical paths, Monte Carlo forecasts and process templates.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newTemplateCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "np %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// connectFromConfig loads the config file and opens the configured
// database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.Database.Name, err)
	}

	return cfg, gormDB, nil
}

// defaultCompany returns the company named in the config, which db init
// seeds.
func defaultCompany(cfg *config.Config, gormDB *gorm.DB) (*models.Company, error) {
	var c models.Company
	if err := gormDB.Where("name = ?", cfg.Company).First(&c).Error; err != nil {
		return nil, fmt.Errorf("company %q not found (run np db init): %w", cfg.Company, err)
	}
	return &c, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
