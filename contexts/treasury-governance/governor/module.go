package governor

import (
	"log/slog"

	httpadapter "tokendao/contexts/treasury-governance/governor/adapters/http"
	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/application/queries"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	"tokendao/contexts/treasury-governance/governor/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Governor *commands.GovernorUseCase
	Queries  queries.GovernanceUseCase
	Store    *memory.Store
	Ledger   *memory.Ledger
}

type Dependencies struct {
	Repository ports.GovernorRepository
	Oracle     ports.BalanceOracle
	Treasury   ports.Treasury
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Settings   entities.Settings
	Recorder   ports.Recorder
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	governor := &commands.GovernorUseCase{
		Repository: deps.Repository,
		Oracle:     deps.Oracle,
		Treasury:   deps.Treasury,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Settings:   deps.Settings,
		Recorder:   deps.Recorder,
		Logger:     deps.Logger,
	}
	governance := queries.GovernanceUseCase{
		Repository: deps.Repository,
		Clock:      deps.Clock,
		Settings:   deps.Settings,
	}
	return Module{
		Handler: httpadapter.Handler{
			Governor: governor,
			Queries:  governance,
			Logger:   deps.Logger,
		},
		Governor: governor,
		Queries:  governance,
	}
}

// NewInMemoryModule wires the governor to process-local state. A nil ledger
// starts empty.
func NewInMemoryModule(settings entities.Settings, ledger *memory.Ledger, recorder ports.Recorder, logger *slog.Logger) Module {
	if ledger == nil {
		ledger = memory.NewLedger()
	}
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository: store,
		Oracle:     ledger,
		Treasury:   ledger,
		Clock:      store,
		IDGen:      store,
		Settings:   settings,
		Recorder:   recorder,
		Logger:     logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}
