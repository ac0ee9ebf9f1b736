package migrate

import "embed"

// EmbeddedDir selects the migrations compiled into the binary instead of the
// on-disk directory.
const EmbeddedDir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS
