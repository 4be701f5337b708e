// Package models contains the GORM models of the ledger read tables. The
// event log itself is owned by the eventstore package.
//
// Read rows are keyed by (tenant_id, id) and carry the stream sequence of the
// last event applied, so a projection upsert can refuse to move a row
// backwards. The ToView methods convert rows into the report package's view
// types; the domain never sees these models.
package models
