// Package migrations embeds the capture journal schema into the binary.
// Importing it registers the schema with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
