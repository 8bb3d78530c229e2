package commands

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/packfang/pkg/config"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/observability"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// VerifyCommand holds configuration and dependencies for the verify command.
type VerifyCommand struct {
	commonFlags
	engineFlags

	noFileChecksum   bool
	noObjectChecksum bool
	keepGoing        bool
	metricsAddr      string

	loadConfig configLoader
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	return newVerifyCommandWithDeps(config.LoadConfig)
}

func newVerifyCommandWithDeps(loadConfig configLoader) *cobra.Command {
	vc := &VerifyCommand{loadConfig: loadConfig}

	cmd := &cobra.Command{
		Use:   "verify <pack-or-index-path>",
		Short: "Decode and verify every object in a pack",
		Long: "Decode every object in a pack while verifying checksums per the\n" +
			"selected safety level, then report decode statistics.",
		Args: cobra.ExactArgs(1),
		RunE: vc.run,
	}

	vc.commonFlags.register(cmd)
	vc.engineFlags.register(cmd)

	cmd.Flags().BoolVar(&vc.noFileChecksum, "no-file-checksum", false,
		"Skip pack and index trailer verification")
	cmd.Flags().BoolVar(&vc.noObjectChecksum, "no-object-checksum", false,
		"Skip per-object sha1 and crc32 verification (implies --no-file-checksum)")
	cmd.Flags().BoolVar(&vc.keepGoing, "keep-going", false,
		"Skip entries that fail to decode instead of aborting (implies --no-object-checksum)")
	cmd.Flags().StringVar(&vc.metricsAddr, "metrics-addr", "",
		"Expose prometheus metrics on this address for the duration of the run")

	return cmd
}

func (vc *VerifyCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := vc.loadConfig(vc.configPath)
	if err != nil {
		return err
	}

	vc.commonFlags.apply(cmd, cfg)
	vc.engineFlags.apply(cmd, cfg)
	vc.applyVerifyFlags(cmd, cfg)

	logger, err := newRunLogger(cfg, "verify", vc.quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	newCache, err := decodeCacheFactory(cfg)
	if err != nil {
		return err
	}

	flag := new(interrupt.Flag)
	stopSignals := flag.HandleSignals()

	defer stopSignals()

	metrics := observability.NewMetrics()

	if addr, enabled := metricsAddr(cfg, vc.metricsAddr, cmd.Flags().Changed("metrics-addr")); enabled {
		stopMetrics := serveMetrics(addr, metrics, logger)

		defer stopMetrics()
	}

	store, err := odb.OpenPackedStore(args[0], 0)
	if err != nil {
		return err
	}

	check := resolveSafetyCheck(cfg.Verify)
	prog := newRunProgress("verify", logger, metrics.ObjectsCounter("verify"))

	logger.Info("verifying pack",
		"path", args[0],
		"objects", store.Index().NumObjects(),
		"check", check.String(),
	)

	startedAt := time.Now()

	id, outcome, err := store.Index().Traverse(store.Data(), prog, nil, newCache, pack.Options{
		ThreadLimit: cfg.Runtime.ThreadLimit,
		ChunkSize:   cfg.Runtime.ChunkSize,
		Check:       check,
		Interrupt:   flag,
	})

	metrics.RecordRun("verify", time.Since(startedAt), err)

	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "FAIL %s\n", args[0])

		return err
	}

	color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "OK %s\n", id)

	return renderTraversal(cmd.OutOrStdout(), cfg.Output.Format, id.String(), check, &outcome)
}

// applyVerifyFlags folds the skip flags into the verify configuration.
func (vc *VerifyCommand) applyVerifyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("no-file-checksum") {
		cfg.Verify.FileChecksum = !vc.noFileChecksum
	}

	if flags.Changed("no-object-checksum") {
		cfg.Verify.ObjectChecksum = !vc.noObjectChecksum
	}

	if flags.Changed("keep-going") {
		cfg.Verify.KeepGoing = vc.keepGoing
	}
}

// resolveSafetyCheck maps the verify configuration onto the check ladder.
// The levels are strictly ordered, so disabling object checksums also skips
// the whole-file stage.
func resolveSafetyCheck(cfg config.VerifyConfig) pack.SafetyCheck {
	switch {
	case cfg.KeepGoing:
		return pack.SkipFileAndObjectChecksumNoAbortOnDecodeError
	case !cfg.ObjectChecksum:
		return pack.SkipFileAndObjectChecksum
	case !cfg.FileChecksum:
		return pack.SkipFileChecksum
	default:
		return pack.All
	}
}
