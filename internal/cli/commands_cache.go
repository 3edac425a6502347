package cli

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var flagKeep []string

// cacheCmd groups cache inspection and maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Server cache management",
}

// cacheListCmd prints every complete install in the cache
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached server installs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := App(cmd)
		installs, err := a.Store.List()
		if err != nil {
			a.Terminal.Error(fmt.Sprintf("Failed to read cache: %v", err))
			return err
		}
		if len(installs) == 0 {
			a.Terminal.Info("Cache is empty")
			return nil
		}

		rows := make([][]string, 0, len(installs))
		for _, install := range installs {
			rows = append(rows, []string{
				install.Commit,
				install.Platform.Key(),
				humanize.Bytes(dirSize(install.Path)),
				install.Path,
			})
		}
		a.Terminal.Section("Cached servers")
		a.Terminal.Table([]string{"COMMIT", "PLATFORM", "SIZE", "PATH"}, rows)
		return nil
	},
}

// cacheClearCmd removes cache entries, optionally keeping matching ones
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached installs and archives",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := App(cmd)
		keep := append(a.Config.Cache.KeepPatterns, flagKeep...)
		removed, err := a.Store.Clear(keep)
		if err != nil {
			a.Terminal.Error(fmt.Sprintf("Failed to clear cache: %v", err))
			return err
		}
		a.Terminal.Success(fmt.Sprintf("Removed %d cached install(s)", removed))
		return nil
	},
}

// dirSize sums file sizes under root; best-effort, unreadable entries count
// as zero.
func dirSize(root string) uint64 {
	var total uint64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
