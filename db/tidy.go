package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy opens the database at path and removes items published before now minus retention
func Tidy(ctx context.Context, database string, retention time.Duration) (int64, error) {
	db, err := Open(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return db.DeleteItemsOlderThan(ctx, time.Now().Add(-retention))
}

// DeleteItemsOlderThan removes items published strictly before cutoff. Their source
// rows go with them through the foreign key cascade.
func (db *DB) DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	deleteItems := sb.NewDeleteBuilder()
	query, args := deleteItems.DeleteFrom("items").
		Where(deleteItems.LessThan("published_at", FormatTime(cutoff))).
		BuildWithFlavor(sb.SQLite)

	log.WithFields(log.Fields{
		"sql":    query,
		"cutoff": FormatTime(cutoff),
	}).Debug("Tidying database")

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	deleted, _ := res.RowsAffected()
	log.WithFields(log.Fields{
		"deleted": deleted,
		"cutoff":  FormatTime(cutoff),
	}).Info("Removed expired items")

	return deleted, nil
}
