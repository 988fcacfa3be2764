// Package history persists a local record of each analysis run so that
// retention trends can be compared across dumps over time.
package history

import (
	"encoding/json"
	"time"
)

// Run is a single analysis invocation: the dump analyzed, when, and a
// snapshot of its top-level retention totals.
type Run struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DumpPath        string    `gorm:"column:dump_path;type:varchar(512)"`
	RerootAddress   string    `gorm:"column:reroot_address;type:varchar(32)"`
	NodeCount       int64     `gorm:"column:node_count"`
	TotalInUseBytes uint64    `gorm:"column:total_in_use_bytes"`
	TypeTotals      JSONField `gorm:"column:type_totals;type:json"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName names the run-history table.
func (Run) TableName() string {
	return "heapdom_run"
}

// JSONField stores an arbitrary JSON payload as TEXT, matching how SQLite
// and other gorm dialects handle a "json" column type without a native one.
type JSONField []byte

// TypeTotalSnapshot is one row of a run's per-type byte totals, persisted
// inside a Run's TypeTotals column.
type TypeTotalSnapshot struct {
	Type  string `json:"type"`
	Bytes uint64 `json:"bytes"`
	Count uint64 `json:"count"`
}

// EncodeTypeTotals marshals a slice of snapshots for storage.
func EncodeTypeTotals(totals []TypeTotalSnapshot) (JSONField, error) {
	b, err := json.Marshal(totals)
	if err != nil {
		return nil, err
	}
	return JSONField(b), nil
}

// DecodeTypeTotals unmarshals a Run's stored type totals.
func DecodeTypeTotals(field JSONField) ([]TypeTotalSnapshot, error) {
	if len(field) == 0 {
		return nil, nil
	}
	var totals []TypeTotalSnapshot
	if err := json.Unmarshal(field, &totals); err != nil {
		return nil, err
	}
	return totals, nil
}
