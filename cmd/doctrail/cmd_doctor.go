package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/doctrail/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, storage and tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(ctx context.Context) error {
	fmt.Fprintln(stdout, "\ndoctrail doctor")
	fmt.Fprintln(stdout, "===============")

	var results []checkResult

	if path, err := configPath(); err == nil {
		if cfg, err := loadConfigFile(); err != nil {
			results = append(results, checkResult{Name: "Config file", Detail: path, Hint: err.Error()})
		} else if cfg == nil {
			results = append(results, checkResult{Name: "Config file", Passed: true, Detail: "none (using flags and env)"})
		} else {
			results = append(results, checkResult{Name: "Config file", Passed: true, Detail: path})
		}
	}

	results = append(results, checkResult{Name: "Server URL", Passed: true, Detail: flagURL})

	if flagActor == "" {
		results = append(results, checkResult{
			Name: "Actor",
			Hint: "Set --actor, DOCTRAIL_ACTOR or a profile actor; types requiring a modifier reject anonymous writes",
		})
	} else {
		results = append(results, checkResult{Name: "Actor", Passed: true, Detail: flagActor})
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c := client.New(flagURL, client.WithActor(flagActor))

	health, err := c.Health(ctx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Server reachable", Detail: flagURL,
			Hint: fmt.Sprintf("Is doctrail-server running? Error: %v", err),
		})
	} else {
		results = append(results, checkResult{
			Name: "Server reachable", Passed: true,
			Detail: fmt.Sprintf("v%s (%s backend, storage %s)", health.Version, health.Backend, health.Storage),
		})

		if ready, err := c.Ready(ctx); err != nil {
			results = append(results, checkResult{Name: "Ready", Hint: err.Error()})
		} else {
			results = append(results, checkResult{Name: "Ready", Passed: true, Detail: ready.Status})
		}

		if types, err := c.Types.List(ctx); err != nil || len(types) == 0 {
			results = append(results, checkResult{Name: "Tracked types", Hint: "Check TRACKING_CONFIG on the server"})
		} else {
			results = append(results, checkResult{Name: "Tracked types", Passed: true, Detail: fmt.Sprintf("%d", len(types))})
		}
	}

	fmt.Fprintln(stdout)
	allPassed := true
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Fprintf(stdout, "%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Fprintf(stdout, "%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Fprintf(stdout, "     Hint: %s\n", r.Hint)
		}
	}

	fmt.Fprintln(stdout)
	if !allPassed {
		fmt.Fprintln(stdout, "Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(stdout, "All checks passed.")
	return nil
}
