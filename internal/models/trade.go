package models

import "gorm.io/gorm"

// Trade is one successful buy recorded in the execution ledger.
type Trade struct {
	gorm.Model
	TradeID      string  `gorm:"uniqueIndex" json:"trade_id"`
	SessionID    string  `gorm:"index" json:"session_id"`
	Side         string  `json:"side"`            // "UP" or "DOWN"
	Level        int     `json:"level,omitempty"` // 0 for manual buys
	Source       string  `json:"source"`          // "tier" or "manual"
	Amount       float64 `json:"amount"`
	Price        float64 `json:"price,omitempty"`
	Unwind       string  `json:"unwind"` // outcome of the opposite-side sell
	Timestamp    int64   `gorm:"index" json:"timestamp"`
	IsSimulation bool    `json:"is_simulation"`
}
