package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/internal/platform/config"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9000":  ":9000",
		":7000": ":7000",
		" 81 ":  ":81",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Config{LogFormat: "text", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "event", "sample")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "event=sample") {
		t.Fatalf("expected text handler output, got %s", out)
	}
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	seed := "total_supply: 1000\ntreasury: 500\nbalances:\n  alice: 700\n  bob: 300\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestBuildRuntimeMemoryUsesLedgerSeed(t *testing.T) {
	cfg := config.Config{
		StorageDriver:    config.StorageMemory,
		GovernanceToken:  "GOV",
		GovernanceQuorum: 50,
		LedgerSeedFile:   writeSeed(t),
	}
	rt, err := BuildRuntime(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	id, err := rt.Module.Governor.Propose(ctx, commands.ProposeCommand{
		Caller: "bob", Recipient: "carol", Amount: 200, Duration: 5,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	result, err := rt.Module.Governor.Vote(ctx, commands.VoteCommand{
		Caller: "alice", ProposalID: id, Direction: "for",
	})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if result.Weight != 70 {
		t.Fatalf("weight = %d, want 70", result.Weight)
	}
	if err := rt.Module.Governor.Execute(ctx, commands.ExecuteCommand{Caller: "bob", ProposalID: id}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := rt.Module.Ledger.NativeBalance("carol"); got != 200 {
		t.Fatalf("carol balance = %d, want 200", got)
	}

	pending, err := rt.Outbox.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 outbox rows, got %d", len(pending))
	}
}

func TestBuildRuntimeSQLitePersistsAcrossRuntimes(t *testing.T) {
	cfg := config.Config{
		StorageDriver:    config.StorageSQLite,
		SQLitePath:       filepath.Join(t.TempDir(), "governor.db"),
		GovernanceToken:  "GOV",
		GovernanceQuorum: 50,
		LedgerSeedFile:   writeSeed(t),
	}
	ctx := context.Background()

	first, err := BuildRuntime(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	if _, err := first.Module.Governor.Propose(ctx, commands.ProposeCommand{
		Caller: "bob", Recipient: "carol", Amount: 100, Duration: 5,
	}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := BuildRuntime(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("rebuild runtime: %v", err)
	}
	defer second.Close()
	last, err := second.Repository().LastProposalID(ctx)
	if err != nil {
		t.Fatalf("last id: %v", err)
	}
	if last != 1 {
		t.Fatalf("last proposal id = %d, want 1", last)
	}
}

func TestBuildRuntimeSQLiteSharesLedgerBetweenProcesses(t *testing.T) {
	cfg := config.Config{
		StorageDriver:    config.StorageSQLite,
		SQLitePath:       filepath.Join(t.TempDir(), "governor.db"),
		GovernanceToken:  "GOV",
		GovernanceQuorum: 50,
		LedgerSeedFile:   writeSeed(t),
	}
	ctx := context.Background()

	api, err := BuildRuntime(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("build api runtime: %v", err)
	}
	defer api.Close()
	worker, err := BuildRuntime(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("build worker runtime: %v", err)
	}
	defer worker.Close()

	id, err := api.Module.Governor.Propose(ctx, commands.ProposeCommand{
		Caller: "bob", Recipient: "carol", Amount: 200, Duration: 5,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := api.Module.Governor.Vote(ctx, commands.VoteCommand{
		Caller: "alice", ProposalID: id, Direction: "for",
	}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := worker.Module.Governor.Execute(ctx, commands.ExecuteCommand{Caller: "keeper", ProposalID: id}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	held, err := api.Module.Governor.Treasury.HeldBalance(ctx)
	if err != nil {
		t.Fatalf("held balance: %v", err)
	}
	if held != 300 {
		t.Fatalf("api sees treasury %d, want 300", held)
	}

	// A third process must not re-apply the seed over the debited treasury.
	restarted, err := BuildRuntime(ctx, cfg, slog.Default())
	if err != nil {
		t.Fatalf("build restarted runtime: %v", err)
	}
	defer restarted.Close()
	held, err = restarted.Module.Governor.Treasury.HeldBalance(ctx)
	if err != nil {
		t.Fatalf("held balance: %v", err)
	}
	if held != 300 {
		t.Fatalf("restarted process sees treasury %d, want 300", held)
	}
}

func TestBuildRuntimeRejectsUnknownDriver(t *testing.T) {
	_, err := BuildRuntime(context.Background(), config.Config{StorageDriver: "etcd"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
