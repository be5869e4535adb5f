package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/foreman/internal/ports/secondary"
)

// CouncilRepository implements secondary.CouncilRepository with SQLite.
type CouncilRepository struct {
	db *sql.DB
}

// NewCouncilRepository creates a new SQLite council repository.
func NewCouncilRepository(db *sql.DB) *CouncilRepository {
	return &CouncilRepository{db: db}
}

// SaveProposals persists the proposals of a council session in one transaction.
func (r *CouncilRepository) SaveProposals(ctx context.Context, proposals []*secondary.ProposalRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range proposals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO council_proposals (run_id, task_id, idx, analyzer, summary, confidence) VALUES (?, ?, ?, ?, ?, ?)`,
			p.RunID, p.TaskID, p.Index, p.Analyzer, p.Summary, p.Confidence,
		)
		if err != nil {
			return fmt.Errorf("failed to save proposal from %s: %w", p.Analyzer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit proposals: %w", err)
	}
	return nil
}

// SaveVotes persists the votes of a council session in one transaction.
func (r *CouncilRepository) SaveVotes(ctx context.Context, votes []*secondary.VoteRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range votes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO council_votes (run_id, task_id, analyzer, proposal_id, rank_vector) VALUES (?, ?, ?, ?, ?)`,
			v.RunID, v.TaskID, v.Analyzer, v.ProposalID, encodeInts(v.Ranks),
		)
		if err != nil {
			return fmt.Errorf("failed to save vote from %s: %w", v.Analyzer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit votes: %w", err)
	}
	return nil
}

// ListProposals retrieves a task's proposals in index order.
func (r *CouncilRepository) ListProposals(ctx context.Context, runID, taskID string) ([]*secondary.ProposalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, task_id, idx, analyzer, summary, confidence FROM council_proposals WHERE run_id = ? AND task_id = ? ORDER BY idx`,
		runID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*secondary.ProposalRecord
	for rows.Next() {
		p := &secondary.ProposalRecord{}
		if err := rows.Scan(&p.RunID, &p.TaskID, &p.Index, &p.Analyzer, &p.Summary, &p.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// ListVotes retrieves a task's votes in proposal order of their authors.
func (r *CouncilRepository) ListVotes(ctx context.Context, runID, taskID string) ([]*secondary.VoteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, task_id, analyzer, proposal_id, rank_vector FROM council_votes WHERE run_id = ? AND task_id = ? ORDER BY proposal_id`,
		runID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []*secondary.VoteRecord
	for rows.Next() {
		var ranks string
		v := &secondary.VoteRecord{}
		if err := rows.Scan(&v.RunID, &v.TaskID, &v.Analyzer, &v.ProposalID, &ranks); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.Ranks = decodeInts(ranks)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

var _ secondary.CouncilRepository = (*CouncilRepository)(nil)
