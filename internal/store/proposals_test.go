package store

import (
	"testing"
)

func insertProposal(t *testing.T, db *DB, p Proposal) string {
	t.Helper()
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Rule == "" {
		p.Rule = "always run tests before pushing"
	}
	if err := db.InsertProposal(&p); err != nil {
		t.Fatalf("InsertProposal: %v", err)
	}
	return p.ID
}

func TestInsertProposalDefaults(t *testing.T) {
	db := testDB(t)
	id := insertProposal(t, db, Proposal{Rule: "prefer table-driven tests"})

	p, err := db.GetProposal(id)
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if p == nil {
		t.Fatal("proposal not found")
	}
	if p.Category != "pattern" {
		t.Errorf("category = %q, want pattern", p.Category)
	}
	if p.Status != "pending" {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if p.Synced {
		t.Error("synced = true on insert")
	}
	if p.DecidedAt != nil {
		t.Errorf("decided_at = %v, want nil", *p.DecidedAt)
	}
	if p.Votes == nil || len(p.Votes) != 0 {
		t.Errorf("votes = %v, want empty list", p.Votes)
	}
}

func TestGetProposalNotFound(t *testing.T) {
	db := testDB(t)

	p, err := db.GetProposal("nope")
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if p != nil {
		t.Errorf("got %+v, want nil", p)
	}
}

func TestUpdateProposalDecision(t *testing.T) {
	db := testDB(t)
	id := insertProposal(t, db, Proposal{})

	status := "accepted"
	updated, err := db.UpdateProposal(id, ProposalUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}
	if !updated {
		t.Fatal("updated = false, want true")
	}

	p, _ := db.GetProposal(id)
	if p.Status != "accepted" {
		t.Errorf("status = %q, want accepted", p.Status)
	}
	if p.DecidedAt == nil {
		t.Error("decided_at not stamped on decision")
	}
}

func TestUpdateProposalSparse(t *testing.T) {
	db := testDB(t)
	id := insertProposal(t, db, Proposal{})

	synced := true
	remoteID := "remote-42"
	updated, err := db.UpdateProposal(id, ProposalUpdate{Synced: &synced, RemoteID: &remoteID})
	if err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}
	if !updated {
		t.Fatal("updated = false, want true")
	}

	p, _ := db.GetProposal(id)
	if !p.Synced {
		t.Error("synced not set")
	}
	if p.RemoteID != "remote-42" {
		t.Errorf("remote_id = %q, want remote-42", p.RemoteID)
	}
	// Untouched fields keep their values.
	if p.Status != "pending" {
		t.Errorf("status = %q, want untouched pending", p.Status)
	}
	if p.DecidedAt != nil {
		t.Error("decided_at stamped without a status change")
	}
}

func TestUpdateProposalNoFields(t *testing.T) {
	db := testDB(t)
	id := insertProposal(t, db, Proposal{})

	updated, err := db.UpdateProposal(id, ProposalUpdate{})
	if err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}
	if updated {
		t.Error("updated = true for empty update")
	}
}

func TestUpdateProposalMissing(t *testing.T) {
	db := testDB(t)

	status := "rejected"
	updated, err := db.UpdateProposal("nope", ProposalUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}
	if updated {
		t.Error("updated = true for missing proposal")
	}
}

func TestUpdateProposalVotes(t *testing.T) {
	db := testDB(t)
	id := insertProposal(t, db, Proposal{})

	votes := []string{"alice:+1", "bob:-1"}
	if _, err := db.UpdateProposal(id, ProposalUpdate{Votes: &votes}); err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}

	p, _ := db.GetProposal(id)
	if len(p.Votes) != 2 || p.Votes[0] != "alice:+1" {
		t.Errorf("votes = %v, want %v", p.Votes, votes)
	}
}

func TestListProposalsByStatus(t *testing.T) {
	db := testDB(t)
	a := insertProposal(t, db, Proposal{Rule: "a"})
	insertProposal(t, db, Proposal{Rule: "b"})

	status := "accepted"
	db.UpdateProposal(a, ProposalUpdate{Status: &status})

	pending, err := db.ListProposals("")
	if err != nil {
		t.Fatalf("ListProposals: %v", err)
	}
	if len(pending) != 1 || pending[0].Rule != "b" {
		t.Errorf("pending = %v, want just b", pending)
	}

	accepted, _ := db.ListProposals("accepted")
	if len(accepted) != 1 || accepted[0].ID != a {
		t.Errorf("accepted = %v, want just a", accepted)
	}
}

func TestUnsyncedProposals(t *testing.T) {
	db := testDB(t)
	insertProposal(t, db, Proposal{Rule: "unsynced pending"})
	synced := insertProposal(t, db, Proposal{Rule: "synced"})
	decided := insertProposal(t, db, Proposal{Rule: "decided"})

	yes := true
	db.UpdateProposal(synced, ProposalUpdate{Synced: &yes})
	status := "rejected"
	db.UpdateProposal(decided, ProposalUpdate{Status: &status})

	unsynced, err := db.UnsyncedProposals()
	if err != nil {
		t.Fatalf("UnsyncedProposals: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].Rule != "unsynced pending" {
		t.Errorf("unsynced = %v, want just the pending unsynced one", unsynced)
	}
}
