package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tokendao/internal/app/bootstrap"
	"tokendao/internal/platform/config"

	governorhttp "tokendao/contexts/treasury-governance/governor/transport/http"

	"github.com/spf13/cobra"
)

// govctl drives the governor directly against the configured storage, without
// going through the HTTP API. With STORAGE_DRIVER=memory state is lost when
// the command exits.
func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	out     io.Writer
	account string
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	rootCmd := &cobra.Command{
		Use:          "govctl",
		Short:        "Operate the token governor",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.account, "account", "a", "", "Caller account id")

	rootCmd.AddCommand(
		c.proposeCmd(),
		c.voteCmd(),
		c.executeCmd(),
		c.proposalCmd(),
		c.proposalsCmd(),
		c.nowCmd(),
	)
	return rootCmd
}

func (c *cli) proposeCmd() *cobra.Command {
	var req governorhttp.ProposeRequest
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Submit a treasury payout proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := c.requireAccount()
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Module.Handler.ProposeHandler(ctx, caller, req)
				if err != nil {
					return err
				}
				return c.print(resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.Recipient, "recipient", "", "Payout recipient")
	cmd.Flags().Uint64Var(&req.Amount, "amount", 0, "Payout amount in native units")
	cmd.Flags().Uint64Var(&req.Duration, "duration", 0, "Vote window length in time units")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func (c *cli) voteCmd() *cobra.Command {
	var req governorhttp.VoteRequest
	cmd := &cobra.Command{
		Use:   "vote <proposal-id>",
		Short: "Cast a token-weighted vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := c.requireAccount()
			if err != nil {
				return err
			}
			proposalID, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Module.Handler.VoteHandler(ctx, caller, proposalID, req)
				if err != nil {
					return err
				}
				return c.print(resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.Direction, "direction", "", "Vote direction: for or against")
	_ = cmd.MarkFlagRequired("direction")
	return cmd
}

func (c *cli) executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <proposal-id>",
		Short: "Pay out an accepted proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := c.requireAccount()
			if err != nil {
				return err
			}
			proposalID, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := rt.Module.Handler.ExecuteHandler(ctx, caller, proposalID); err != nil {
					return err
				}
				resp, err := rt.Module.Handler.GetProposalHandler(ctx, proposalID)
				if err != nil {
					return err
				}
				return c.print(resp)
			})
		},
	}
}

func (c *cli) proposalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposal <proposal-id>",
		Short: "Show one proposal with its tally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalID, err := parseProposalID(args[0])
			if err != nil {
				return err
			}
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Module.Handler.GetProposalHandler(ctx, proposalID)
				if err != nil {
					return err
				}
				return c.print(resp)
			})
		},
	}
}

func (c *cli) proposalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposals",
		Short: "List proposals in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Module.Handler.ListProposalsHandler(ctx)
				if err != nil {
					return err
				}
				return c.print(resp)
			})
		},
	}
}

func (c *cli) nowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Print the governor clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				return c.print(rt.Module.Handler.NowHandler(ctx))
			})
		},
	}
}

func (c *cli) requireAccount() (string, error) {
	account := strings.TrimSpace(c.account)
	if account == "" {
		return "", errors.New("--account is required")
	}
	return account, nil
}

func (c *cli) withRuntime(ctx context.Context, fn func(context.Context, *bootstrap.Runtime) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg, os.Stderr)
	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, rt)
}

func (c *cli) print(payload any) error {
	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func parseProposalID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("proposal id must be an unsigned integer: %q", raw)
	}
	return id, nil
}
