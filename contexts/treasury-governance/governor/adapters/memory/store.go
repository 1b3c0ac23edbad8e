package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	sequence  uint64
	published bool
}

type ballotKey struct {
	proposalID entities.ProposalID
	account    string
}

// Store keeps governor state in process memory. It also acts as the clock
// and event id source for in-memory wiring; tests can pin the clock with
// SetNow.
type Store struct {
	mu sync.RWMutex

	lastID    entities.ProposalID
	proposals map[entities.ProposalID]entities.Proposal
	tallies   map[entities.ProposalID]entities.Tally
	ballots   map[ballotKey]entities.Ballot

	outbox         map[string]outboxRecord
	outboxSequence uint64

	now *time.Time
}

func NewStore() *Store {
	return &Store{
		proposals: make(map[entities.ProposalID]entities.Proposal),
		tallies:   make(map[entities.ProposalID]entities.Tally),
		ballots:   make(map[ballotKey]entities.Ballot),
		outbox:    make(map[string]outboxRecord),
	}
}

func (s *Store) LastProposalID(_ context.Context) (entities.ProposalID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, nil
}

func (s *Store) CreateProposal(
	_ context.Context,
	proposal entities.Proposal,
	tally entities.Tally,
	event ports.EventEnvelope,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proposal.ID != s.lastID+1 || tally.ProposalID != proposal.ID {
		return domainerrors.ErrConflict
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}
	s.lastID = proposal.ID
	s.proposals[proposal.ID] = proposal
	s.tallies[proposal.ID] = tally
	return nil
}

func (s *Store) GetProposal(_ context.Context, id entities.ProposalID) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[id]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return proposal, nil
}

func (s *Store) ListProposals(_ context.Context) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Proposal, 0, len(s.proposals))
	for _, proposal := range s.proposals {
		items = append(items, proposal)
	}
	sortProposals(items)
	return items, nil
}

func (s *Store) ListExecutableProposals(_ context.Context, closedBefore time.Time, quorum uint64, limit int) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.Executed || !proposal.VoteEnd.Before(closedBefore) {
			continue
		}
		if s.tallies[proposal.ID].Decide(quorum) != nil {
			continue
		}
		items = append(items, proposal)
	}
	sortProposals(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) GetTally(_ context.Context, id entities.ProposalID) (entities.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally, ok := s.tallies[id]
	if !ok {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}
	return tally, nil
}

func (s *Store) HasBallot(_ context.Context, id entities.ProposalID, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ballots[ballotKey{proposalID: id, account: strings.TrimSpace(account)}]
	return ok, nil
}

func (s *Store) CastBallot(
	_ context.Context,
	ballot entities.Ballot,
	direction entities.VoteDirection,
	weight uint64,
	event ports.EventEnvelope,
) (entities.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[ballot.ProposalID]
	if !ok {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		return entities.Tally{}, domainerrors.ErrProposalAlreadyExecuted
	}
	if !proposal.VotingOpen(ballot.CastAt) {
		return entities.Tally{}, domainerrors.ErrVotePeriodEnded
	}
	tally := s.tallies[ballot.ProposalID]
	key := ballotKey{proposalID: ballot.ProposalID, account: strings.TrimSpace(ballot.Account)}
	if _, exists := s.ballots[key]; exists {
		return entities.Tally{}, domainerrors.ErrAlreadyVoted
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return entities.Tally{}, err
	}
	ballot.Account = key.account
	s.ballots[key] = ballot
	tally = tally.Add(direction, weight)
	s.tallies[ballot.ProposalID] = tally
	return tally, nil
}

func (s *Store) MarkExecuted(_ context.Context, id entities.ProposalID, quorum uint64, executedAt time.Time) (entities.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, ok := s.proposals[id]
	if !ok {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		return entities.Tally{}, domainerrors.ErrProposalAlreadyExecuted
	}
	tally := s.tallies[id]
	if err := tally.Decide(quorum); err != nil {
		return tally, err
	}
	at := executedAt.UTC()
	proposal.Executed = true
	proposal.ExecutedAt = &at
	s.proposals[id] = proposal
	return tally, nil
}

func (s *Store) RevertExecution(_ context.Context, id entities.ProposalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, ok := s.proposals[id]
	if !ok {
		return domainerrors.ErrProposalNotFound
	}
	proposal.Executed = false
	proposal.ExecutedAt = nil
	s.proposals[id] = proposal
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOutboxLocked(envelope)
}

func (s *Store) appendOutboxLocked(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outboxSequence++
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
		sequence: s.outboxSequence,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].sequence < rows[j].sequence
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

// SetNow pins the clock. Passing the zero time returns to wall-clock time.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.IsZero() {
		s.now = nil
		return
	}
	pinned := now.UTC()
	s.now = &pinned
}

// Advance moves a pinned clock forward; it pins the clock first if needed.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := time.Now().UTC()
	if s.now != nil {
		base = *s.now
	}
	next := base.Add(d)
	s.now = &next
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now != nil {
		return *s.now
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortProposals(items []entities.Proposal) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
}

var _ ports.GovernorRepository = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
