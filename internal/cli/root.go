// Package cli implements the feedctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedlog/backend/internal/analytics/schedule"
	"feedlog/backend/internal/feeding"
	"feedlog/backend/internal/logging"
	"feedlog/backend/internal/store"
)

var (
	dbPath     string
	filePath   string
	userID     string
	tzName     string
	birthFlag  string
	nowFlag    string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "feedctl",
	Short: "Offline feeding analytics",
	Long:  "Runs feeding predictions, records and summaries against a local SQLite log or a JSON export.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite path (default: $FEEDLOG_DB or ~/.feedlog/feedlog.db)")
	RootCmd.PersistentFlags().StringVar(&filePath, "file", "", "Read feedings from a JSON export instead of the database")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "User id")
	RootCmd.PersistentFlags().StringVar(&tzName, "tz", "", "IANA timezone (default: profile timezone or UTC)")
	RootCmd.PersistentFlags().StringVar(&birthFlag, "birth", "", "Birth date YYYY-MM-DD (default: profile birth date)")
	RootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "Evaluate as of this RFC3339 time")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("FEEDLOG_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".feedlog", "feedlog.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLite(getDBPath(), logging.Nop())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// input is the feeding history plus the context needed to analyze it.
type input struct {
	events    []feeding.Event
	birthDate *time.Time
	loc       *time.Location
	now       time.Time
}

func (in input) ageWeeks() int {
	if in.birthDate == nil {
		return 0
	}
	return schedule.AgeInWeeks(*in.birthDate, in.now)
}

func (in input) last() (feeding.Event, bool) {
	if len(in.events) == 0 {
		return feeding.Event{}, false
	}
	return in.events[len(in.events)-1], true
}

func loadInput(ctx context.Context) (input, error) {
	in := input{loc: time.UTC, now: time.Now().UTC()}
	if nowFlag != "" {
		now, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return input{}, fmt.Errorf("--now must be RFC3339: %w", err)
		}
		in.now = now.UTC()
	}

	profileTZ := ""
	if filePath != "" {
		events, err := readEventsFile(filePath)
		if err != nil {
			return input{}, err
		}
		in.events = events
	} else {
		s, err := openStore()
		if err != nil {
			return input{}, fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		in.events, err = s.List(ctx, userID, store.Query{})
		if err != nil {
			return input{}, fmt.Errorf("list feedings: %w", err)
		}
		profile, err := s.GetProfile(ctx, userID)
		switch {
		case err == nil:
			in.birthDate = profile.BirthDate
			profileTZ = profile.Timezone
		case !errors.Is(err, store.ErrNotFound):
			return input{}, fmt.Errorf("load profile: %w", err)
		}
	}
	in.events = feeding.SortAscending(in.events)

	if tz := firstNonEmpty(tzName, profileTZ); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return input{}, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		in.loc = loc
	}
	if birthFlag != "" {
		birth, err := time.ParseInLocation("2006-01-02", birthFlag, in.loc)
		if err != nil {
			return input{}, fmt.Errorf("--birth must be YYYY-MM-DD: %w", err)
		}
		in.birthDate = &birth
	}
	if in.birthDate != nil {
		birth := schedule.BirthMidnight(*in.birthDate, in.loc)
		in.birthDate = &birth
	}
	return in, nil
}

func readEventsFile(path string) ([]feeding.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var events []feeding.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for idx, event := range events {
		if _, ok := feeding.ParseSide(string(event.Side)); !ok {
			return nil, fmt.Errorf("feeding %d: unknown side %q", idx, event.Side)
		}
	}
	return events, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func textOutput() bool {
	return strings.EqualFold(formatFlag, "text")
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}
