package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// catalogCmd — операции с каталогом.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Каталог медиафайлов",
}

// catalogListCmd печатает все записи в порядке отображения.
var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список записей каталога",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		records, err := a.catalog.ListAll(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tFILE\tUPLOADED")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				rec.ID, rec.DisplayName, humanize.IBytes(uint64(rec.SizeBytes)),
				rec.StorageLocation, humanize.Time(rec.CreatedAt))
		}
		return tw.Flush()
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
}
