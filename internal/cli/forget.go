package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Run the forgetting engine",
}

func init() {
	forgetCmd.AddCommand(forgetSweepCmd)
	forgetCmd.AddCommand(forgetCandidatesCmd)
	forgetCmd.AddCommand(forgetColdCmd)
	forgetCmd.AddCommand(forgetRestoreCmd)
}

var forgetSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a full forgetting cycle (decay, demote, purge, merge)",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := eng.Sweep(ctx, "manual_sweep"); err != nil {
			return fmt.Errorf("sweep: %w", err)
		}

		stats, err := eng.GetEntropyStats(eng.Config.MaxFacts)
		if err != nil {
			return err
		}
		fmt.Printf("sweep complete: %d active facts, %d cold, entropy %.3f (%s)\n",
			stats.TotalFacts, stats.ColdFacts, stats.Entropy, stats.Status)
		return nil
	},
}

var (
	candidatesMinRelevance float64
	candidatesMinAccess    int
)

var forgetCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List facts eligible for promotion to a rules file",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		facts, err := eng.GetPromotionCandidates(candidatesMinRelevance, candidatesMinAccess)
		if err != nil {
			return fmt.Errorf("candidates: %w", err)
		}

		if len(facts) == 0 {
			fmt.Println("No promotion candidates.")
			return nil
		}

		for _, f := range facts {
			fmt.Printf("%s relevance %.2f, accessed %d×\n  %s\n", f.ID, f.Relevance, f.AccessCount, f.Text)
		}
		return nil
	},
}

func init() {
	forgetCandidatesCmd.Flags().Float64Var(&candidatesMinRelevance, "min-relevance", 0.8, "Minimum relevance")
	forgetCandidatesCmd.Flags().IntVar(&candidatesMinAccess, "min-access", 3, "Minimum access count")
}

var forgetColdLimit int

var forgetColdCmd = &cobra.Command{
	Use:   "cold",
	Short: "List archived facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cold, err := db.ListColdFacts(forgetColdLimit)
		if err != nil {
			return fmt.Errorf("list cold facts: %w", err)
		}

		if len(cold) == 0 {
			fmt.Println("Cold storage is empty.")
			return nil
		}

		for _, c := range cold {
			archived := time.UnixMilli(c.ArchivedAt).Format("2006-01-02")
			fmt.Printf("%s archived %s (%s)\n  %s\n", c.ID, archived, c.ArchiveReason, c.Text)
		}
		return nil
	},
}

func init() {
	forgetColdCmd.Flags().IntVarP(&forgetColdLimit, "limit", "n", 50, "Maximum entries to show")
}

var forgetRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore an archived fact to the active store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		restored, err := eng.RestoreFromColdStorage(args[0])
		if err != nil {
			return err
		}
		if !restored {
			fmt.Printf("no cold fact %s\n", args[0])
			return nil
		}
		fmt.Printf("restored %s\n", args[0])
		return nil
	},
}

var statsHistory int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory health",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		stats, err := eng.GetEntropyStats(eng.Config.MaxFacts)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		fmt.Printf("entropy:        %.3f (%s)\n", stats.Entropy, stats.Status)
		fmt.Printf("active facts:   %d\n", stats.TotalFacts)
		fmt.Printf("cold facts:     %d\n", stats.ColdFacts)
		fmt.Printf("never accessed: %d\n", stats.NeverAccessed)
		fmt.Printf("low relevance:  %d\n", stats.LowRelevance)
		fmt.Printf("avg relevance:  %.2f\n", stats.AvgRelevance)
		fmt.Printf("avg age:        %.1f days\n", stats.AvgAgeDays)
		if stats.NeedsCompaction {
			fmt.Println("\nmemory needs cleanup; run: engram forget sweep")
		}

		if statsHistory > 0 {
			metrics, err := eng.DB.ListMetrics(statsHistory)
			if err != nil {
				return err
			}
			if len(metrics) > 0 {
				fmt.Println("\nhistory:")
				for _, m := range metrics {
					ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
					fmt.Printf("  %s entropy %.3f, %d facts, %d cold (%s)\n",
						ts, m.EntropyScore, m.TotalFacts, m.ColdFacts, m.ActionTaken)
				}
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsHistory, "history", 0, "Show the last N metric snapshots")
}
