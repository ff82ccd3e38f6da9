package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedlog/backend/internal/analytics/aggregate"
	"feedlog/backend/internal/analytics/bedtime"
	"feedlog/backend/internal/analytics/predict"
	"feedlog/backend/internal/analytics/records"
	"feedlog/backend/internal/feeding"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "predict",
		Short: "Predict the next feeding",
		Run:   runPredict,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "records",
		Short: "Show the longest intervals and progress toward them",
		Run:   runRecords,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "bedtime",
		Short: "Estimate the bedtime window",
		Run:   runBedtime,
	})

	daily := &cobra.Command{
		Use:   "daily",
		Short: "Per-day feeding counts",
		Run:   runDaily,
	}
	daily.Flags().Int("days", 7, "Number of days ending today")
	RootCmd.AddCommand(daily)

	RootCmd.AddCommand(&cobra.Command{
		Use:   "weekly",
		Short: "Weekly interval medians, split day and night",
		Run:   runWeekly,
	})
}

func runPredict(cmd *cobra.Command, args []string) {
	in, err := loadInput(cmd.Context())
	if err != nil {
		exitErr("load feedings", err)
	}
	out := cmd.OutOrStdout()

	result := predict.Predict(in.events, len(in.events), in.ageWeeks(), in.now, predict.WithLocation(in.loc))
	if result == nil {
		if textOutput() {
			fmt.Fprintln(out, "no feedings yet")
			return
		}
		printJSON(out, map[string]any{"prediction": nil})
		return
	}

	next := in.now.Add(time.Duration(result.NextFeedingPrediction * float64(time.Minute))).In(in.loc)
	if textOutput() {
		fmt.Fprintf(out, "next feeding around %s (in %.0f min)\n", next.Format("15:04"), result.NextFeedingPrediction)
		fmt.Fprintf(out, "expected interval %.1f min, window %.1f min, reliability %d%% (%s)\n",
			result.ExpectedIntervalMinutes, result.ProbWindowMinutes, result.ReliabilityIndex, result.Source)
		return
	}
	printJSON(out, map[string]any{
		"prediction":      result,
		"next_feeding_at": next.Format(time.RFC3339),
	})
}

func runRecords(cmd *cobra.Command, args []string) {
	in, err := loadInput(cmd.Context())
	if err != nil {
		exitErr("load feedings", err)
	}
	out := cmd.OutOrStdout()

	window := feeding.Since(in.events, in.now.AddDate(0, 0, -records.WindowDays))
	set := records.Update(window, in.loc)
	var progress *records.Progress
	if last, ok := in.last(); ok {
		p := records.ApproachingNow(set, last.Timestamp, in.now, in.loc)
		progress = &p
	}

	if textOutput() {
		for _, group := range []struct {
			label   string
			entries []records.Entry
		}{{"day", set.Day}, {"night", set.Night}} {
			fmt.Fprintf(out, "%s records:\n", group.label)
			if len(group.entries) == 0 {
				fmt.Fprintln(out, "  none")
			}
			for idx, entry := range group.entries {
				fmt.Fprintf(out, "  %d. %s (%s %s)\n", idx+1, formatDuration(entry.Interval), entry.Date, entry.Time)
			}
		}
		if progress != nil && !progress.NoRecords {
			if progress.AllBeaten {
				fmt.Fprintln(out, "current interval beats every record")
			} else {
				fmt.Fprintf(out, "%.0f min to %s\n", progress.MinutesRemaining, progress.TargetRank)
			}
		}
		return
	}
	printJSON(out, map[string]any{"records": set, "approaching": progress})
}

func runBedtime(cmd *cobra.Command, args []string) {
	in, err := loadInput(cmd.Context())
	if err != nil {
		exitErr("load feedings", err)
	}
	out := cmd.OutOrStdout()

	result := bedtime.Estimate(in.events, in.ageWeeks(), in.now, in.loc)
	if !textOutput() {
		printJSON(out, result)
		return
	}
	switch result.Status {
	case bedtime.StatusReady:
		fmt.Fprintf(out, "bedtime window %s-%s (median %s, reliability %d%%)\n",
			bedtime.FormatMinutes(result.WindowStartMinutes),
			bedtime.FormatMinutes(result.WindowEndMinutes),
			bedtime.FormatMinutes(result.MedianMinutes),
			result.Reliability)
	case bedtime.StatusLearning:
		fmt.Fprintf(out, "%s: %d more nights needed\n", result.Status, result.NightsNeeded)
	case bedtime.StatusNotEnoughData:
		fmt.Fprintf(out, "%s: %d feedings in the last %d days\n", result.Status, result.TotalEvents, bedtime.WindowDays)
	default:
		fmt.Fprintln(out, result.Status)
	}
}

func runDaily(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	if days < 1 {
		exitErr("daily", fmt.Errorf("--days must be positive"))
	}
	in, err := loadInput(cmd.Context())
	if err != nil {
		exitErr("load feedings", err)
	}
	out := cmd.OutOrStdout()

	counts := aggregate.DailyRange(in.events, days, in.now, in.loc)
	if !textOutput() {
		printJSON(out, counts)
		return
	}
	for _, day := range counts {
		fmt.Fprintf(out, "%s  total %2d  left %2d  right %2d  bottle %2d\n", day.Date, day.Total, day.Left, day.Right, day.Bottle)
	}
}

func runWeekly(cmd *cobra.Command, args []string) {
	in, err := loadInput(cmd.Context())
	if err != nil {
		exitErr("load feedings", err)
	}
	out := cmd.OutOrStdout()

	weeks := aggregate.WeeklyMedians(in.events, in.birthDate, in.loc)
	if !textOutput() {
		printJSON(out, weeks)
		return
	}
	for _, week := range weeks {
		fmt.Fprintf(out, "%s  day median %5.1f (n=%d)  night median %5.1f (n=%d)\n",
			week.WeekKey, week.Day.Median, week.Day.Count, week.Night.Median, week.Night.Count)
	}
}

func formatDuration(minutes int) string {
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
