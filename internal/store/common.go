package store

import "github.com/eigerco/statedb/pkg/db"

const (
	ErrFailedTransaction = "failed to commit transaction: %w"
)

// Columns for all store types
const (
	ColumnBlocks db.Column = iota + 1
	ColumnBlockChildren
	ColumnOwners
	ColumnMetadata
)

// ColumnToString converts a column to a string
func ColumnToString(c db.Column) string {
	switch c {
	case ColumnBlocks:
		return "blocks"
	case ColumnBlockChildren:
		return "blockChildren"
	case ColumnOwners:
		return "owners"
	case ColumnMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}
