package cli

import (
	"fmt"
	"strings"

	"github.com/lumen-tools/engram/internal/store"
	"github.com/spf13/cobra"
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Manage rule proposals",
	RunE:  runProposalsList,
}

var proposalsStatus string

func init() {
	proposalsCmd.Flags().StringVar(&proposalsStatus, "status", "pending", "Filter by status (pending, accepted, rejected)")
	proposalsCmd.AddCommand(proposalsAddCmd)
	proposalsCmd.AddCommand(proposalsAcceptCmd)
	proposalsCmd.AddCommand(proposalsRejectCmd)
}

func runProposalsList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	proposals, err := db.ListProposals(proposalsStatus)
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}

	if len(proposals) == 0 {
		fmt.Printf("No %s proposals.\n", proposalsStatus)
		return nil
	}

	for _, p := range proposals {
		synced := ""
		if p.Synced {
			synced = " (synced)"
		}
		fmt.Printf("%s [%s] %s%s\n  %s\n", p.ID, p.Category, p.Status, synced, p.Rule)
	}
	return nil
}

var proposalsAddCategory string

var proposalsAddCmd = &cobra.Command{
	Use:   "add [rule text]",
	Short: "Propose a new rule",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id := store.NewID()
		if err := db.InsertProposal(&store.Proposal{
			ID:       id,
			Rule:     strings.Join(args, " "),
			Category: proposalsAddCategory,
		}); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}

		fmt.Printf("proposed %s\n", id)
		return nil
	},
}

func init() {
	proposalsAddCmd.Flags().StringVarP(&proposalsAddCategory, "category", "c", "", "Proposal category")
}

var proposalsAcceptCmd = &cobra.Command{
	Use:   "accept [id]",
	Short: "Accept a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideProposal(args[0], "accepted")
	},
}

var proposalsRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideProposal(args[0], "rejected")
	},
}

func decideProposal(id, status string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	updated, err := db.UpdateProposal(id, store.ProposalUpdate{Status: &status})
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if !updated {
		fmt.Printf("proposal %s not found\n", id)
		return nil
	}
	fmt.Printf("%s %s\n", status, id)
	return nil
}
