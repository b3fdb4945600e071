// Package sqlitepath resolves the SQLite watch history used by the CLI.
package sqlitepath

import (
	"os"
	"strings"

	"github.com/papercomputeco/substream/pkg/dotdir"
)

// EnvSQLite names the environment variable that overrides the history path.
const EnvSQLite = "SUBSTREAM_SQLITE"

// ResolveSQLitePath returns the history database path. Order of precedence:
//  1. override (flag or config value)
//  2. $SUBSTREAM_SQLITE
//  3. substream.db inside the resolved .substream/ directory
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv(EnvSQLite)); envPath != "" {
		return envPath, nil
	}

	return dotdir.NewManager().HistoryPath(configDir)
}
