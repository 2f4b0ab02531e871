package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweep removes workspace directories under base older than maxAge. Live
// requests always clean up after themselves; this only catches directories
// left behind by a crashed process. Returns the number removed.
func Sweep(base string, maxAge time.Duration) int {
	if base == "" {
		base = os.TempDir()
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		p := filepath.Join(base, e.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("dir", p).Msg("failed to sweep stale workspace")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("base", base).Msg("swept stale workspaces")
	}
	return removed
}
