// cmd/chainledger — operator CLI for the ledger core.
//
// It connects directly to the backing database and exposes audit and
// resolution operations: chain verification, anchoring, anchor
// verification, policy resolution, and policy history.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provenant/chainledger/internal/anchor"
	"github.com/provenant/chainledger/internal/ledger"
	"github.com/provenant/chainledger/internal/policy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	dbURL   string
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainledger",
	Short: "ChainLedger audit and policy CLI",
	Long: `chainledger is the operator CLI for the tamper-evident billing ledger.

It verifies hash chains and Merkle anchors, creates anchors on demand, and
resolves which governance policy applies to a scope at a given instant.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(".")
			viper.SetConfigName("chainledger")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if dbURL == "" {
			dbURL = viper.GetString("database.url")
		}
		if dbURL == "" {
			dbURL = os.Getenv("DATABASE_URL")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./chainledger.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "storage connection string (default $DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(verifyChainCmd)
	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(anchorCmd)
	rootCmd.AddCommand(verifyAnchorCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(resolveEngineCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(offersCmd)
	rootCmd.AddCommand(versionCmd)
}

// connect opens the database pool and builds the service wiring shared by
// all subcommands.
func connect(ctx context.Context) (*pgxpool.Pool, *zap.Logger, error) {
	if dbURL == "" {
		return nil, nil, fmt.Errorf("no database URL: set --database-url, database.url, or DATABASE_URL")
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, nil, fmt.Errorf("init logger: %w", err)
		}
	}

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, logger, nil
}

// ── verify-chain ─────────────────────────────────────────────────────────────

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain <scope>",
	Short: "Recompute a scope's hash chain from genesis and report tampering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		l := ledger.New(ledger.NewPostgresStore(db, logger), nil, logger)
		if err := l.VerifyChain(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("chain %s: ok\n", args[0])
		return nil
	},
}

// ── head ─────────────────────────────────────────────────────────────────────

var headCmd = &cobra.Command{
	Use:   "head <scope>",
	Short: "Print a scope's current chain tip hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		l := ledger.New(ledger.NewPostgresStore(db, logger), nil, logger)
		head, err := l.Head(ctx, args[0])
		if err != nil {
			return err
		}
		if head == "" {
			fmt.Printf("scope %s: empty\n", args[0])
			return nil
		}
		fmt.Println(head)
		return nil
	},
}

// ── anchor / verify-anchor ───────────────────────────────────────────────────

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Snapshot the full ledger into a new Merkle anchor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := anchor.NewService(ledger.NewPostgresStore(db, logger), anchor.NewPostgresStore(db, logger), logger)
		svc.SetMinInterval(0)

		a, err := svc.Anchor(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("anchor %s root=%s entries=%d\n", a.ID, a.RootHash, a.EntryCount)
		return nil
	},
}

var verifyAnchorCmd = &cobra.Command{
	Use:   "verify-anchor <anchor-id>",
	Short: "Recompute an anchor's Merkle root over the entries it covers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid anchor ID %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := anchor.NewService(ledger.NewPostgresStore(db, logger), anchor.NewPostgresStore(db, logger), logger)
		if err := svc.VerifyAnchor(ctx, id); err != nil {
			return err
		}
		fmt.Printf("anchor %s: ok\n", id)
		return nil
	},
}

// ── resolve / resolve-engine ─────────────────────────────────────────────────

var atFlag string

// parseAt parses the --at flag, defaulting to now.
func parseAt() (time.Time, error) {
	if atFlag == "" {
		return time.Now().UTC(), nil
	}
	at, err := time.Parse(time.RFC3339, atFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q (want RFC 3339): %w", atFlag, err)
	}
	return at, nil
}

func newRegistry(db *pgxpool.Pool, logger *zap.Logger) *policy.Registry {
	// Signature enforcement is an ingest-time gate; reads need no verifier.
	return policy.NewRegistry(policy.NewPostgresRepository(db, logger), nil, logger)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <scope>",
	Short: "Resolve the policy governing a scope at an instant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseAt()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := newRegistry(db, logger).ResolvePolicy(ctx, args[0], at)
		if err != nil {
			return err
		}
		printPolicy(p, args[0], at)
		return nil
	},
}

var resolveEngineCmd = &cobra.Command{
	Use:   "resolve-engine <engine>",
	Short: "Resolve the policy governing an engine (exact scope wins over generic)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseAt()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := newRegistry(db, logger).ResolvePolicyForEngine(ctx, args[0], at)
		if err != nil {
			return err
		}
		printPolicy(p, args[0], at)
		return nil
	},
}

func printPolicy(p *policy.Policy, subject string, at time.Time) {
	if p == nil {
		fmt.Printf("no policy governs %s at %s\n", subject, at.Format(time.RFC3339))
		return
	}
	until := "open-ended"
	if p.EffectiveUntil != nil {
		until = p.EffectiveUntil.Format(time.RFC3339)
	}
	fmt.Printf("%s@%s scope=%s effective=%s..%s\n",
		p.PolicyID, p.Version, p.Scope,
		p.EffectiveFrom.Format(time.RFC3339), until,
	)
}

func init() {
	resolveCmd.Flags().StringVar(&atFlag, "at", "", "instant to resolve at, RFC 3339 (default now)")
	resolveEngineCmd.Flags().StringVar(&atFlag, "at", "", "instant to resolve at, RFC 3339 (default now)")
	offersCmd.Flags().StringVar(&atFlag, "at", "", "instant to resolve at, RFC 3339 (default now)")
}

// ── history ──────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history <scope>",
	Short: "Print a scope's full policy audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		policies, err := newRegistry(db, logger).PolicyHistory(ctx, args[0])
		if err != nil {
			return err
		}
		if len(policies) == 0 {
			fmt.Printf("no policies for scope %s\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "POLICY\tVERSION\tEFFECTIVE FROM\tEFFECTIVE UNTIL\tSIGNED")
		for _, p := range policies {
			until := "-"
			if p.EffectiveUntil != nil {
				until = p.EffectiveUntil.Format(time.RFC3339)
			}
			signed := "no"
			if p.Signature != "" {
				signed = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.PolicyID, p.Version, p.EffectiveFrom.Format(time.RFC3339), until, signed)
		}
		return w.Flush()
	},
}

// ── offers ───────────────────────────────────────────────────────────────────

var offersCmd = &cobra.Command{
	Use:   "offers <scope>",
	Short: "List offers eligible for a scope at an instant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseAt()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, logger, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		offers, err := newRegistry(db, logger).EligibleOffers(ctx, args[0], at)
		if err != nil {
			return err
		}
		if len(offers) == 0 {
			fmt.Printf("no eligible offers for %s at %s\n", args[0], at.Format(time.RFC3339))
			return nil
		}
		for _, o := range offers {
			fmt.Printf("%s scope=%s from=%s\n", o.OfferID, o.Scope, o.EffectiveFrom.Format(time.RFC3339))
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chainledger CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chainledger", version)
	},
}
