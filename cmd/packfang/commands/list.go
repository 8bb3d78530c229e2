package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/config"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/revlist"
)

const shortIDLen = 7

// ListCommand holds configuration and dependencies for the list command.
type ListCommand struct {
	commonFlags

	cacheSize string

	loadConfig configLoader
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return newListCommandWithDeps(config.LoadConfig)
}

func newListCommandWithDeps(loadConfig configLoader) *cobra.Command {
	lc := &ListCommand{loadConfig: loadConfig}

	cmd := &cobra.Command{
		Use:   "list <repo-dir> <commit-id>",
		Short: "Walk commit ancestry newest-first",
		Long: "Walk the ancestry of a commit in newest-commit-time-first order,\n" +
			"printing the short id, commit time and parent count of each commit.",
		Args: cobra.ExactArgs(2),
		RunE: lc.run,
	}

	lc.commonFlags.register(cmd)
	cmd.Flags().StringVar(&lc.cacheSize, "cache", "",
		"Decode cache budget for the walk, e.g. '64MiB' ('0' disables)")

	return cmd
}

func (lc *ListCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := lc.loadConfig(lc.configPath)
	if err != nil {
		return err
	}

	lc.commonFlags.apply(cmd, cfg)

	if cmd.Flags().Changed("cache") {
		cfg.Cache.DecodeSize = lc.cacheSize
	}

	logger, err := newRunLogger(cfg, "list", lc.quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	tip, err := githash.Parse(args[1])
	if err != nil {
		return fmt.Errorf("parse commit id %q: %w", args[1], err)
	}

	store, err := odb.OpenCompoundStore(odb.DiscoverObjectsDir(args[0]))
	if err != nil {
		return err
	}

	newCache, err := decodeCacheFactory(cfg)
	if err != nil {
		return err
	}

	dc := cache.Noop()
	if newCache != nil {
		dc = newCache()
	}

	logger.Debug("walking ancestry", "repo", args[0], "tip", tip.String())

	out := cmd.OutOrStdout()

	for info, walkErr := range revlist.Ancestors(store, dc, tip) {
		if walkErr != nil {
			return walkErr
		}

		_, err := fmt.Fprintf(out, "%s %d %d\n", info.ID.Short(shortIDLen), info.CommitTime, len(info.ParentIDs))
		if err != nil {
			return err
		}
	}

	return nil
}
