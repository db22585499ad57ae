package inventory

import "time"

// StockChangedEvent describes a committed variant quantity change.
type StockChangedEvent struct {
	VariantID string
	ProductID string
	Delta     int64
	Quantity  int64
	Movement  MovementType
	At        time.Time
}

// StockListener reacts to committed stock changes, for example refreshing snapshots.
type StockListener interface {
	StockChanged(evt StockChangedEvent)
}
