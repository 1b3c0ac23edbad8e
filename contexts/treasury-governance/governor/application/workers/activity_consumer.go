package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/ports"
)

const defaultActivityCG = "governor-activity-cg"

// ProposalActivity counts relayed events for one proposal.
type ProposalActivity struct {
	Votes  int
	Closed bool
}

// ActivityConsumer follows the governance topics on the bus and keeps a
// per-proposal activity summary. It only reads; state lives in the governor.
type ActivityConsumer struct {
	Subscriber    ports.EventSubscriber
	ConsumerGroup string
	Logger        *slog.Logger

	mu       sync.Mutex
	activity map[string]ProposalActivity
}

func (c *ActivityConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultActivityCG
	}
	for _, topic := range []string{
		commands.EventProposalSubmitted,
		commands.EventVoteCast,
		commands.EventProposalClosed,
	} {
		if err := c.Subscriber.Subscribe(ctx, topic, group, c.handle); err != nil {
			logger.Error("governance activity subscribe failed",
				"event", "governor_activity_subscribe_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"topic", topic,
				"consumer_group", group,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("governance activity subscriptions active",
		"event", "governor_activity_consumer_started",
		"module", application.ModuleName,
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c *ActivityConsumer) handle(_ context.Context, event ports.EventEnvelope) error {
	var data map[string]any
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.activity == nil {
		c.activity = make(map[string]ProposalActivity)
	}
	entry := c.activity[event.PartitionKey]
	switch event.EventType {
	case commands.EventVoteCast:
		entry.Votes++
	case commands.EventProposalClosed:
		entry.Closed = true
	}
	c.activity[event.PartitionKey] = entry
	c.mu.Unlock()

	application.ResolveLogger(c.Logger).Info("governance event observed",
		"event", "governor_activity_observed",
		"module", application.ModuleName,
		"layer", "worker",
		"event_type", event.EventType,
		"event_id", event.EventID,
		"proposal_id", event.PartitionKey,
		"data", data,
	)
	return nil
}

// Activity returns the summary for a proposal id as published in the
// partition key.
func (c *ActivityConsumer) Activity(proposalID string) (ProposalActivity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.activity[proposalID]
	return entry, ok
}
