package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gorm.io/gorm"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/database"
	gormstorage "github.com/wro-sim/simlink/internal/storage/gorm"
)

func runRuns(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	sqlitePath := fs.String("sqlite", "", "read a SQLite dump instead of Postgres")
	runID := fs.String("run", "", "print this run's vehicle states as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openRunsDB(*configDir, *sqlitePath)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	return listRuns(context.Background(), gormstorage.New(gormstorage.Dependencies{DB: db}), *runID, out)
}

func openRunsDB(configDir, sqlitePath string) (*gorm.DB, error) {
	if sqlitePath != "" {
		return database.OpenSqlite(sqlitePath)
	}
	if err := config.Load(configDir); err != nil {
		config.SetDefaults()
	}
	return database.OpenPostgres(config.GetDBConfig())
}

func listRuns(ctx context.Context, b *gormstorage.Backend, runID string, out io.Writer) error {
	if runID != "" {
		states, err := b.LoadVehicleStates(ctx, runID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for i := range states {
			if err := enc.Encode(&states[i]); err != nil {
				return err
			}
		}
		return nil
	}

	runs, err := b.ListRuns(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTAG\tSTART\tDURATION\tMODE")
	for _, r := range runs {
		duration := "-"
		if !r.EndTime.IsZero() {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Tag, r.StartTime.Local().Format(time.DateTime), duration, r.ControlMode)
	}
	return tw.Flush()
}
