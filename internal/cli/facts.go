package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumen-tools/engram/internal/config"
	"github.com/lumen-tools/engram/internal/engine"
	"github.com/spf13/cobra"
)

// newEngine opens the database and builds an engine with the default
// embedding provider for one-shot CLI commands.
func newEngine() (*engine.Engine, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	cfg := config.Default()
	provider := engine.NewProvider(cfg.Embedding.URL, cfg.Embedding.Model)
	return engine.New(db, provider), func() { db.Close() }, nil
}

// --- remember command ---

var (
	rememberCategory string
	rememberScope    string
	rememberModel    string
	rememberSource   string
)

var rememberCmd = &cobra.Command{
	Use:   "remember [text]",
	Short: "Store a fact",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

func init() {
	rememberCmd.Flags().StringVarP(&rememberCategory, "category", "c", "", "Fact category")
	rememberCmd.Flags().StringVar(&rememberScope, "scope", "", "Fact scope (local or team)")
	rememberCmd.Flags().StringVar(&rememberModel, "model", "", "Model attribution")
	rememberCmd.Flags().StringVar(&rememberSource, "source", "", "Source context")
}

func runRemember(cmd *cobra.Command, args []string) error {
	eng, closeDB, err := newEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := eng.StoreFact(ctx, engine.StoreFactParams{
		Text:          strings.Join(args, " "),
		Category:      rememberCategory,
		Scope:         rememberScope,
		Model:         rememberModel,
		SourceContext: rememberSource,
	})
	if err != nil {
		return fmt.Errorf("store fact: %w", err)
	}

	fmt.Printf("stored %s\n", id)
	return nil
}

// --- search command ---

var (
	searchLimit    int
	searchCategory string
	searchScope    string
	searchNoTrack  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search facts",
	Long:  "Search stored facts by semantic similarity, or lexical matching when no embedder is available.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "Filter by category")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "Filter by scope")
	searchCmd.Flags().BoolVar(&searchNoTrack, "no-track", false, "Skip access tracking")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, closeDB, err := newEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := eng.SearchFacts(ctx, strings.Join(args, " "), engine.SearchOpts{
		Limit:      searchLimit,
		Category:   searchCategory,
		Scope:      searchScope,
		NoTracking: searchNoTrack,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Similarity, r.Fact.Text)
		fmt.Printf("   %s · %s · relevance %.2f · recalled %d×\n",
			r.Fact.Category, r.Fact.ID, r.Fact.Relevance, r.Fact.RecallCount)
	}

	return nil
}

// --- facts command ---

var factsScope string

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List stored facts",
	RunE:  runFacts,
}

func init() {
	factsCmd.Flags().StringVar(&factsScope, "scope", "", "Filter by scope")
	factsCmd.AddCommand(factsDeleteCmd)
	factsCmd.AddCommand(factsPromoteCmd)
}

func runFacts(cmd *cobra.Command, args []string) error {
	eng, closeDB, err := newEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	facts, err := eng.AllFacts(factsScope)
	if err != nil {
		return fmt.Errorf("list facts: %w", err)
	}

	if len(facts) == 0 {
		fmt.Println("No facts stored.")
		return nil
	}

	for _, f := range facts {
		promoted := ""
		if f.PromotedTo != "" {
			promoted = " → " + f.PromotedTo
		}
		fmt.Printf("%s [%s/%s] %.2f%s\n  %s\n", f.ID, f.Category, f.Scope, f.Relevance, promoted, f.Text)
	}
	return nil
}

var factsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		deleted, err := eng.DeleteFact(args[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Printf("fact %s not found\n", args[0])
			return nil
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var factsPromoteCmd = &cobra.Command{
	Use:   "promote [id] [destination]",
	Short: "Mark a fact as promoted to a rules file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeDB, err := newEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		found, err := eng.MarkFactPromoted(args[0], args[1])
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("fact %s not found\n", args[0])
			return nil
		}
		fmt.Printf("promoted %s → %s\n", args[0], args[1])
		return nil
	},
}
