package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/krstream/internal/service"
)

// sweepCmd выполняет один цикл очистки и печатает итог.
// Pending транзакции работающего сервера не затрагиваются.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Однократная очистка временных и осиротевших файлов",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		svc := service.NewSweepService(a.catalog, a.store, a.walEngine, a.cfg.SweepInterval, a.cfg.SweepGrace, a.logger)
		result, err := svc.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "temp: %d, orphans: %d, errors: %d, wal: %d\n",
			result.TempDeleted, result.OrphansDeleted, result.Errors, result.WALCleaned)
		for _, id := range result.MissingFiles {
			fmt.Fprintf(out, "missing file: %s\n", id)
		}
		return nil
	},
}
