package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/config"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/observability"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/count"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
	"github.com/Sumatoshi-tech/packfang/pkg/revlist"
)

// ErrNoInputIDs is returned when neither arguments nor --stdin provide ids.
var ErrNoInputIDs = errors.New("no object ids given (pass ids or --stdin)")

// CountCommand holds configuration and dependencies for the count command.
type CountCommand struct {
	commonFlags
	engineFlags

	policy      string
	walk        bool
	stdin       bool
	unthreaded  bool
	list        bool
	objectCache string

	loadConfig configLoader
}

// NewCountCommand creates the count command.
func NewCountCommand() *cobra.Command {
	return newCountCommandWithDeps(config.LoadConfig)
}

func newCountCommandWithDeps(loadConfig configLoader) *cobra.Command {
	cc := &CountCommand{loadConfig: loadConfig}

	cmd := &cobra.Command{
		Use:   "count <repo-dir> [object-ids...]",
		Short: "Expand object ids into the set a new pack would contain",
		Long: "Expand the given object ids according to an expansion policy and\n" +
			"report the deduplicated set of objects a pack built from them would\n" +
			"contain.",
		Args: cobra.MinimumNArgs(1),
		RunE: cc.run,
	}

	cc.commonFlags.register(cmd)
	cc.engineFlags.register(cmd)

	cmd.Flags().StringVar(&cc.policy, "policy", "",
		"Expansion policy: as-is, tree-contents, tree-additions")
	cmd.Flags().BoolVar(&cc.walk, "walk", false,
		"Treat each id as a commit tip and feed its whole ancestry in")
	cmd.Flags().BoolVar(&cc.stdin, "stdin", false,
		"Read additional object ids from standard input, one per line")
	cmd.Flags().BoolVar(&cc.unthreaded, "unthreaded", false,
		"Run single-threaded, skipping the worker pool and pack placement lookups")
	cmd.Flags().BoolVar(&cc.list, "list", false,
		"Print each counted object id")
	cmd.Flags().StringVar(&cc.objectCache, "object-cache", "",
		"Tree cache budget for the tree-additions diff, e.g. '4MiB' ('0' disables)")

	return cmd
}

func (cc *CountCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := cc.loadConfig(cc.configPath)
	if err != nil {
		return err
	}

	cc.commonFlags.apply(cmd, cfg)
	cc.engineFlags.apply(cmd, cfg)
	cc.applyCountFlags(cmd, cfg)

	policy, err := count.ParseObjectExpansion(cfg.Count.Policy)
	if err != nil {
		return err
	}

	logger, err := newRunLogger(cfg, "count", cc.quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	newCache, err := decodeCacheFactory(cfg)
	if err != nil {
		return err
	}

	objectCacheBytes, err := cfg.Cache.ObjectBytes()
	if err != nil {
		return err
	}

	ids, err := cc.gatherIDs(cmd, args[1:])
	if err != nil {
		return err
	}

	store, err := odb.OpenCompoundStore(odb.DiscoverObjectsDir(args[0]))
	if err != nil {
		return err
	}

	flag := new(interrupt.Flag)
	stopSignals := flag.HandleSignals()

	defer stopSignals()

	metrics := observability.NewMetrics()

	if addr, enabled := metricsAddr(cfg, "", false); enabled {
		stopMetrics := serveMetrics(addr, metrics, logger)

		defer stopMetrics()
	}

	prog := newRunProgress("count", logger, metrics.ObjectsCounter("count"))

	logger.Info("counting objects",
		"repo", args[0],
		"packs", store.NumPacks(),
		"tips", len(ids),
		"policy", policy.String(),
		"walk", cc.walk,
	)

	input := idSequence(ids)
	if cc.walk {
		walkCache := cache.Noop()
		if newCache != nil {
			walkCache = newCache()
		}

		input = ancestrySequence(store, walkCache, ids)
	}

	opts := count.Options{
		ThreadLimit:      cfg.Runtime.ThreadLimit,
		ChunkSize:        cfg.Runtime.ChunkSize,
		Expansion:        policy,
		Interrupt:        flag,
		ObjectCacheBytes: objectCacheBytes,
	}

	startedAt := time.Now()
	counts, outcome, err := cc.expand(store, newCache, input, prog, opts)
	metrics.RecordRun("count", time.Since(startedAt), err)

	if err != nil {
		return err
	}

	return renderCounts(cmd.OutOrStdout(), cfg.Output.Format, policy, counts, outcome, cc.list)
}

// expand dispatches to the threaded or single-threaded engine.
func (cc *CountCommand) expand(
	store odb.Store,
	newCache func() cache.DecodeEntry,
	input iter.Seq2[githash.Hash, error],
	prog progress.Progress,
	opts count.Options,
) ([]count.Count, count.Outcome, error) {
	if !cc.unthreaded {
		return count.Objects(store, newCache, input, prog, opts)
	}

	dc := cache.Noop()
	if newCache != nil {
		dc = newCache()
	}

	return count.ObjectsUnthreaded(store, dc, input, prog, opts)
}

// applyCountFlags folds the counting flags into the configuration.
func (cc *CountCommand) applyCountFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("policy") {
		cfg.Count.Policy = cc.policy
	}

	if flags.Changed("object-cache") {
		cfg.Cache.ObjectSize = cc.objectCache
	}
}

// gatherIDs parses positional ids, then any that --stdin streams in.
func (cc *CountCommand) gatherIDs(cmd *cobra.Command, args []string) ([]githash.Hash, error) {
	ids := make([]githash.Hash, 0, len(args))

	for _, arg := range args {
		id, err := githash.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("parse object id %q: %w", arg, err)
		}

		ids = append(ids, id)
	}

	if cc.stdin {
		stdinIDs, err := readIDLines(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}

		ids = append(ids, stdinIDs...)
	}

	if len(ids) == 0 {
		return nil, ErrNoInputIDs
	}

	return ids, nil
}

func readIDLines(r io.Reader) ([]githash.Hash, error) {
	var ids []githash.Hash

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		id, err := githash.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("parse object id %q: %w", line, err)
		}

		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}

	return ids, nil
}

// idSequence yields the parsed ids as the expansion input.
func idSequence(ids []githash.Hash) iter.Seq2[githash.Hash, error] {
	return func(yield func(githash.Hash, error) bool) {
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

// ancestrySequence yields every ancestor of every tip. A walk error ends
// the whole sequence, matching the engine's fatal handling of input errors.
func ancestrySequence(store odb.Store, dc cache.DecodeEntry, tips []githash.Hash) iter.Seq2[githash.Hash, error] {
	return func(yield func(githash.Hash, error) bool) {
		for _, tip := range tips {
			for id, err := range revlist.IDs(revlist.Ancestors(store, dc, tip)) {
				if !yield(id, err) {
					return
				}

				if err != nil {
					return
				}
			}
		}
	}
}
