package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Proposal is a candidate rule awaiting a community-style decision.
type Proposal struct {
	ID            string
	Rule          string
	Category      string
	Rationale     string
	SourceContext string
	Status        string // pending, accepted, rejected
	Votes         []string
	Synced        bool
	RemoteID      string
	CreatedAt     int64
	DecidedAt     *int64
}

const proposalColumns = `id, rule, category, rationale, source_context, status,
	votes, synced, remote_id, created_at, decided_at`

// InsertProposal creates a pending proposal. Category defaults to "pattern".
func (db *DB) InsertProposal(p *Proposal) error {
	if p.Category == "" {
		p.Category = "pattern"
	}
	p.Status = "pending"
	p.CreatedAt = nowMillis()

	votes, err := json.Marshal(p.Votes)
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	if p.Votes == nil {
		votes = []byte("[]")
	}

	_, err = db.Exec(`
		INSERT INTO proposals (id, rule, category, rationale, source_context, status, votes, synced, remote_id, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), 'pending', ?, 0, NULLIF(?, ''), ?)
	`, p.ID, p.Rule, p.Category, p.Rationale, p.SourceContext, string(votes), p.RemoteID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// ListProposals returns proposals with the given status (default pending),
// newest first.
func (db *DB) ListProposals(status string) ([]Proposal, error) {
	if status == "" {
		status = "pending"
	}
	rows, err := db.Query(`
		SELECT `+proposalColumns+` FROM proposals
		WHERE status = ? ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

// GetProposal returns a proposal by ID, or nil if not found.
func (db *DB) GetProposal(id string) (*Proposal, error) {
	row := db.QueryRow(`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// ProposalUpdate carries the fields a sparse update may set. Nil fields are
// left untouched.
type ProposalUpdate struct {
	Status   *string
	Synced   *bool
	RemoteID *string
	Votes    *[]string
}

// UpdateProposal mutates only the supplied fields. decided_at is stamped
// exactly when status leaves pending. Returns false when no fields were
// given or the ID does not exist.
func (db *DB) UpdateProposal(id string, u ProposalUpdate) (bool, error) {
	var sets []string
	var args []any

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
		if *u.Status != "pending" {
			sets = append(sets, "decided_at = ?")
			args = append(args, nowMillis())
		}
	}
	if u.Synced != nil {
		sets = append(sets, "synced = ?")
		if *u.Synced {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if u.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, *u.RemoteID)
	}
	if u.Votes != nil {
		votes, err := json.Marshal(*u.Votes)
		if err != nil {
			return false, fmt.Errorf("encode votes: %w", err)
		}
		sets = append(sets, "votes = ?")
		args = append(args, string(votes))
	}

	if len(sets) == 0 {
		return false, nil
	}

	args = append(args, id)
	result, err := db.Exec("UPDATE proposals SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("update proposal: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// UnsyncedProposals returns pending proposals the sync collaborator has not
// yet pushed.
func (db *DB) UnsyncedProposals() ([]Proposal, error) {
	rows, err := db.Query(`
		SELECT ` + proposalColumns + ` FROM proposals
		WHERE synced = 0 AND status = 'pending'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("unsynced proposals: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var p Proposal
	var rationale, sourceContext, remoteID sql.NullString
	var votes string
	var synced int
	var decidedAt sql.NullInt64
	err := row.Scan(&p.ID, &p.Rule, &p.Category, &rationale, &sourceContext, &p.Status,
		&votes, &synced, &remoteID, &p.CreatedAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	p.Rationale = rationale.String
	p.SourceContext = sourceContext.String
	p.RemoteID = remoteID.String
	p.Synced = synced != 0
	if decidedAt.Valid {
		p.DecidedAt = &decidedAt.Int64
	}
	json.Unmarshal([]byte(votes), &p.Votes)
	return &p, nil
}

func scanProposals(rows *sql.Rows) ([]Proposal, error) {
	var proposals []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}
