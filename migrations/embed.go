// Package migrations embeds the goose SQL migrations into the binary.
//
// Files live in one directory per database driver (sqlite/, postgres/).
// Importing this package registers them with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/authgate/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
