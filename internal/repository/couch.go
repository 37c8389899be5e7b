package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/go-kivik/kivik/v4"
)

// EnsureDatabase creates dbName when missing and installs the Mango indexes the
// repositories query on.
func EnsureDatabase(ctx context.Context, client *kivik.Client, dbName string) error {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		log.Printf("Created database: %s", dbName)
	}

	db := client.DB(dbName)
	indexes := map[string][]string{
		"by_updated":  {"doc_type", "updated_ns"},
		"by_doc_type": {"doc_type"},
		"by_device":   {"doc_type", "device_id"},
	}
	for name, fields := range indexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, "hexanote", name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	return nil
}

// findPageSize is how many documents one _find round trip asks for.
const findPageSize = 1000

// findAll runs a Mango query to completion, following the bookmark page by
// page. A document that fails to decode fails the whole query.
func findAll[T any](ctx context.Context, db *kivik.DB, selector map[string]interface{}, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = findPageSize
	}

	var (
		out      []T
		bookmark string
	)
	for {
		query := map[string]interface{}{
			"selector": selector,
			"limit":    pageSize,
		}
		if bookmark != "" {
			query["bookmark"] = bookmark
		}

		rows := db.Find(ctx, query)
		n := 0
		for rows.Next() {
			var doc T
			if err := rows.ScanDoc(&doc); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode document: %w", err)
			}
			out = append(out, doc)
			n++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		meta, err := rows.Metadata()
		rows.Close()
		if err != nil {
			return nil, err
		}

		if n < pageSize || meta == nil || meta.Bookmark == "" || meta.Bookmark == bookmark {
			return out, nil
		}
		bookmark = meta.Bookmark
	}
}
