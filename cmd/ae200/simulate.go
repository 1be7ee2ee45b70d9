package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zberg/go-ae200/internal/simulator"
)

func init() {
	simulateCmd.Flags().String("listen", ":8080", "Address to listen on")
	simulateCmd.Flags().StringArray("unit", nil, `Group to simulate as id=name, e.g. --unit 1="Living Room" (repeatable)`)
	simulateCmd.Flags().Duration("tick", 10*time.Second, "Interval of the room temperature model")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated AE-200 controller",
	Run: func(cmd *cobra.Command, args []string) {
		listen, _ := cmd.Flags().GetString("listen")
		unitFlags, _ := cmd.Flags().GetStringArray("unit")
		tick, _ := cmd.Flags().GetDuration("tick")

		units, err := parseUnits(unitFlags)
		if err != nil {
			fmt.Printf("Invalid unit: %v\n", err)
			os.Exit(1)
		}

		logger := newLogger(logLevel, "text")
		sim := simulator.New(units, simulator.WithLogger(logger.With("component", "simulator")))
		srv := &http.Server{Addr: listen, Handler: sim, ReadHeaderTimeout: 10 * time.Second}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			sim.Run(ctx, tick)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		fmt.Printf("Simulating %d groups on %s\n", len(units), listen)
		if err := g.Wait(); err != nil {
			fmt.Printf("Simulator stopped: %v\n", err)
			os.Exit(1)
		}
	},
}

// parseUnits turns id=name flags into units. No flags yield two default
// groups.
func parseUnits(flags []string) ([]simulator.Unit, error) {
	if len(flags) == 0 {
		return []simulator.Unit{
			{Group: "1", Name: "Living Room"},
			{Group: "2", Name: "Bedroom"},
		}, nil
	}

	units := make([]simulator.Unit, 0, len(flags))
	seen := make(map[string]bool, len(flags))
	for _, f := range flags {
		id, name, ok := strings.Cut(f, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("%q: expected id=name", f)
		}
		if seen[id] {
			return nil, fmt.Errorf("%q: group %s given twice", f, id)
		}
		seen[id] = true
		units = append(units, simulator.Unit{Group: id, Name: strings.Trim(name, `"`)})
	}
	return units, nil
}
