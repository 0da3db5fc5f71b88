package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"seqnum/internal/app"
	"seqnum/internal/config"
	appctx "seqnum/internal/core/context"
	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/domain/auth"
	"seqnum/internal/infrastructure/http/v1/dto"
	"seqnum/pkg/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "seqctl",
		Short: "Manage numbering sequences",
		Long: `seqctl creates sequences, issues values and adjusts counters
against the database configured for the seqnum server.

Every command except token needs storage.driver=postgres. The memory
driver keeps nothing between invocations and is rejected.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateCmd(opts),
		newShowCmd(opts),
		newNextCmd(opts),
		newSetNextCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// withApp loads configuration, wires the application and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("%s needs storage.driver=%s, got %q", cmd.CommandPath(), config.DriverPostgres, cfg.Storage.Driver)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := logger.WithLogger(cmd.Context(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the sequence table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
				return nil
			})
		},
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		req        dto.CreateSequenceRequest
		numberNext int64
		increment  int64
		resetValue int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.NumberNext = &numberNext
			req.Increment = &increment
			req.ResetValue = &resetValue

			seq, err := req.ToEntity()
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Service.Create(ctx, seq); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), seq.ID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Code, "code", "", "lookup code")
	f.StringVar(&req.Name, "name", "", "display name (required)")
	f.StringVar(&req.CompanyID, "company", "", "owning company id")
	f.StringVar(&req.Implementation, "implementation", string(numerator.ImplementationStandard), "standard or no_gap")
	f.Int64Var(&numberNext, "number-next", numerator.DefaultNumberNext, "first value issued")
	f.Int64Var(&increment, "increment", numerator.DefaultIncrement, "step between values")
	f.IntVar(&req.Padding, "padding", 0, "zero-pad the value to this width")
	f.StringVar(&req.Prefix, "prefix", "", "prefix template, e.g. INV/%(year)s/")
	f.StringVar(&req.Suffix, "suffix", "", "suffix template")
	f.BoolVar(&req.AutoReset, "auto-reset", false, "restart the counter every period")
	f.StringVar(&req.ResetPeriod, "period", string(numerator.DefaultPeriod), "year, month, woy, day, h24, min or sec")
	f.Int64Var(&resetValue, "reset-value", numerator.DefaultResetValue, "value to restart at")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "show [code]",
		Short: "List sequences, optionally filtered by code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := numerator.ListFilter{IncludeInactive: all}
			if len(args) == 1 {
				filter.Code = args[0]
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				items, err := a.Service.List(ctx, filter)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCODE\tNAME\tIMPL\tNEXT\tRESET\tTOKEN")
				for _, s := range items {
					reset := "-"
					if s.AutoReset {
						reset = string(s.ResetPeriod)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						s.ID, s.Code, s.Name, s.Implementation, s.NumberNext, reset, s.ResetToken)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive sequences")
	return cmd
}

func newNextCmd(opts *rootOptions) *cobra.Command {
	var (
		req      dto.NextValueRequest
		company  string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "next <code>",
		Short: "Issue the next value of the sequence with code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := req.ToCallContext(&appctx.CallerContext{CompanyID: company, Timezone: timezone})
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				value, found, err := a.Service.NextByCode(ctx, call, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no active sequence with code %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.EffectiveDate, "date", "", "effective date, YYYY-MM-DD")
	f.StringVar(&req.RangeDate, "range-date", "", "date behind range_* tokens, YYYY-MM-DD")
	f.StringVar(&company, "company", "", "caller company id")
	f.StringVar(&timezone, "tz", "", "IANA timezone for now")
	return cmd
}

func newSetNextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-next <id> <value>",
		Short: "Make value the next number issued",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqID, err := id.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			value, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Service.SetNextNumber(ctx, seqID, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "next number of %s is %d\n", seqID, value)
				return nil
			})
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var caller appctx.CallerContext

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}

			jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
			jwtCfg.Issuer = cfg.Auth.Issuer
			if cfg.Auth.TokenTTL > 0 {
				jwtCfg.AccessTokenTTL = cfg.Auth.TokenTTL
			}
			token, expiresAt, err := auth.NewJWTService(jwtCfg).GenerateAccessToken(caller)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&caller.UserID, "user", "", "user id (required)")
	f.StringVar(&caller.CompanyID, "company", "", "active company id")
	f.StringVar(&caller.Timezone, "tz", "", "IANA timezone")
	f.StringSliceVar(&caller.Roles, "role", nil, "role, repeatable")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
