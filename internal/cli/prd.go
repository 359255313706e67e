package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var prdCmd = &cobra.Command{
	Use:   "prd",
	Short: "Ingest and query product requirement documents",
}

func init() {
	prdCmd.AddCommand(prdIngestCmd)
	prdCmd.AddCommand(prdContextCmd)
}

var prdIngestCmd = &cobra.Command{
	Use:   "ingest [prd-id] [file]",
	Short: "Chunk and store a PRD document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}

		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := eng.IngestPRD(ctx, args[0], args[1], string(content))
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}

		fmt.Printf("stored %d chunks for %s\n", count, args[0])
		return nil
	},
}

var (
	prdContextTokens int
	prdContextID     string
)

var prdContextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Assemble PRD context for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		query := args[0]
		for _, a := range args[1:] {
			query += " " + a
		}

		result, err := eng.GetPRDContext(ctx, query, prdContextTokens, prdContextID)
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		if result == nil {
			fmt.Println("No PRD chunks stored.")
			return nil
		}

		fmt.Println(result.Context)
		fmt.Fprintf(os.Stderr, "\n%d chunks, top relevance %.3f\n", result.ChunksUsed, result.TopRelevance)
		return nil
	},
}

func init() {
	prdContextCmd.Flags().IntVar(&prdContextTokens, "max-tokens", 2000, "Token budget for assembled context")
	prdContextCmd.Flags().StringVar(&prdContextID, "prd-id", "", "Restrict to a single PRD")
}
