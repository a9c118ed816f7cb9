package model

import "time"

// FeatureFlag is an operator-controlled kill switch.
type FeatureFlag struct {
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
