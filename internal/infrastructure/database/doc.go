// Package database provides SQLite storage for the capture journal.
//
// This package manages:
//   - The connection, with WAL mode so API reads run beside the capture writer
//   - Embedded schema migrations, applied in version order
//   - Lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// registered by the migrations package at the module root.
package database
