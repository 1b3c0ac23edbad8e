package queries

import (
	"context"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"
	"tokendao/contexts/treasury-governance/governor/ports"
)

// ProposalView joins a proposal with its tally for read models.
type ProposalView struct {
	Proposal entities.Proposal
	Tally    entities.Tally
}

// GovernanceUseCase serves read-only views of governor state.
type GovernanceUseCase struct {
	Repository ports.GovernorRepository
	Clock      ports.Clock
	Settings   entities.Settings
}

func (uc GovernanceUseCase) GetProposal(ctx context.Context, id entities.ProposalID) (entities.Proposal, error) {
	return uc.Repository.GetProposal(ctx, id)
}

func (uc GovernanceUseCase) GetProposalView(ctx context.Context, id entities.ProposalID) (ProposalView, error) {
	proposal, err := uc.Repository.GetProposal(ctx, id)
	if err != nil {
		return ProposalView{}, err
	}
	tally, err := uc.Repository.GetTally(ctx, id)
	if err != nil {
		return ProposalView{}, err
	}
	return ProposalView{Proposal: proposal, Tally: tally}, nil
}

func (uc GovernanceUseCase) GetTally(ctx context.Context, id entities.ProposalID) (entities.Tally, error) {
	if _, err := uc.Repository.GetProposal(ctx, id); err != nil {
		return entities.Tally{}, err
	}
	return uc.Repository.GetTally(ctx, id)
}

// ListProposals returns every proposal in id order.
func (uc GovernanceUseCase) ListProposals(ctx context.Context) ([]ProposalView, error) {
	proposals, err := uc.Repository.ListProposals(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		tally, err := uc.Repository.GetTally(ctx, proposal.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, ProposalView{Proposal: proposal, Tally: tally})
	}
	return items, nil
}

func (uc GovernanceUseCase) LastProposalID(ctx context.Context) (entities.ProposalID, error) {
	return uc.Repository.LastProposalID(ctx)
}

// Now is the governor's notion of current time, used for vote windows.
func (uc GovernanceUseCase) Now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func (uc GovernanceUseCase) CurrentSettings() entities.Settings {
	return uc.Settings
}
