package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"feedlog/backend/internal/store"
)

func init() {
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON export into the database",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}
	RootCmd.AddCommand(importCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export feedings as JSON",
		Run:   runExport,
	}
	exportCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	RootCmd.AddCommand(exportCmd)
}

type importResult struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
}

func runImport(cmd *cobra.Command, args []string) {
	events, err := readEventsFile(args[0])
	if err != nil {
		exitErr("read import", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var result importResult
	for _, event := range events {
		if strings.TrimSpace(event.ID) == "" {
			event.ID = uuid.NewString()
		}
		event.UserID = userID
		event.Timestamp = event.Timestamp.UTC()
		if err := s.Insert(cmd.Context(), event); err != nil {
			if errors.Is(err, store.ErrConflict) {
				result.Duplicates++
				continue
			}
			exitErr("import "+event.ID, err)
		}
		result.Imported++
	}

	if textOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d feedings (%d duplicates skipped)\n", result.Imported, result.Duplicates)
		return
	}
	printJSON(cmd.OutOrStdout(), result)
}

func runExport(cmd *cobra.Command, args []string) {
	outPath, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	events, err := s.List(cmd.Context(), userID, store.Query{})
	if err != nil {
		exitErr("list feedings", err)
	}

	if outPath == "" {
		printJSON(cmd.OutOrStdout(), events)
		return
	}
	f, err := os.Create(outPath)
	if err != nil {
		exitErr("create "+outPath, err)
	}
	defer f.Close()
	printJSON(f, events)
	fmt.Fprintf(cmd.ErrOrStderr(), "exported %d feedings to %s\n", len(events), outPath)
}
