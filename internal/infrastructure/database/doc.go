// Package database provides the SQLite store behind packpilot's run history.
//
// It owns the connection (WAL mode, busy timeout, single writer) and a small
// forward-only migration runner. Migration files live in the top-level
// migrations package and are embedded into the binary; Migrate takes the
// file system explicitly so tests can supply their own.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
