package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/example/foreman/internal/core/council"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/secondary"
)

// CouncilServiceImpl runs the five analyzer roles over an escalated task and
// reduces their diagnoses to one by ranked-choice voting.
type CouncilServiceImpl struct {
	analyzer    secondary.Analyzer
	councilRepo secondary.CouncilRepository
	attempts    secondary.EscalationRepository
	logger      *logging.Logger
}

// NewCouncilService creates a new CouncilService with injected dependencies.
func NewCouncilService(
	analyzer secondary.Analyzer,
	councilRepo secondary.CouncilRepository,
	attempts secondary.EscalationRepository,
	logger *logging.Logger,
) *CouncilServiceImpl {
	return &CouncilServiceImpl{
		analyzer:    analyzer,
		councilRepo: councilRepo,
		attempts:    attempts,
		logger:      logger,
	}
}

// Convene runs one council session. Every role proposes, then every role
// ranks all proposals including its own. Any analyzer error or malformed
// vote fails the session.
func (s *CouncilServiceImpl) Convene(ctx context.Context, runID string, task *secondary.TaskRecord) (*council.Result, error) {
	log := s.logger.WithTask(task.ID).WithPhase("council")

	history, err := s.attempts.ListAttempts(ctx, runID, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt history: %w", err)
	}
	brief := secondary.CouncilBrief{RunID: runID, TaskID: task.ID, Title: task.Title, Attempts: history}
	roles := council.Roles()

	diagnoses := make([]secondary.Diagnosis, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			d, err := s.analyzer.Propose(gctx, role, brief)
			if err != nil {
				return fmt.Errorf("analyzer %s failed to propose: %w", role, err)
			}
			diagnoses[i] = *d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	proposals := make([]council.Proposal, len(roles))
	proposalRecords := make([]*secondary.ProposalRecord, len(roles))
	for i, role := range roles {
		conf := clampConfidence(diagnoses[i].Confidence)
		proposals[i] = council.Proposal{Index: i, Analyzer: role, Summary: diagnoses[i].Summary, Confidence: conf}
		proposalRecords[i] = &secondary.ProposalRecord{
			RunID: runID, TaskID: task.ID, Index: i, Analyzer: role,
			Summary: diagnoses[i].Summary, Confidence: conf,
		}
	}
	if err := s.councilRepo.SaveProposals(ctx, proposalRecords); err != nil {
		return nil, fmt.Errorf("failed to save proposals: %w", err)
	}

	votes := make([]council.Vote, len(roles))
	g, gctx = errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			ranks, err := s.analyzer.Rank(gctx, role, brief, diagnoses)
			if err != nil {
				return fmt.Errorf("analyzer %s failed to rank: %w", role, err)
			}
			v := council.Vote{Analyzer: role, Ranks: ranks}
			if err := council.ValidateVote(v, len(roles)); err != nil {
				return err
			}
			votes[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	voteRecords := make([]*secondary.VoteRecord, len(votes))
	for i, v := range votes {
		voteRecords[i] = &secondary.VoteRecord{RunID: runID, TaskID: task.ID, Analyzer: v.Analyzer, ProposalID: i, Ranks: v.Ranks}
	}
	if err := s.councilRepo.SaveVotes(ctx, voteRecords); err != nil {
		return nil, fmt.Errorf("failed to save votes: %w", err)
	}

	result, err := council.Tally(proposals, votes)
	if err != nil {
		return nil, err
	}
	log.Info("council decided", "winner", result.Winner.Analyzer, "index", result.Winner.Index,
		"rank_sums", result.RankSums, "decided_by", result.DecidedBy)
	return &result, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
