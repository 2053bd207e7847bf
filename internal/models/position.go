package models

// PositionLeg is one side of a hedged position. Short legs store their size
// negated so net exposure is a plain sum of both legs.
type PositionLeg struct {
	Size     float64 `json:"size"`
	Price    float64 `json:"price"`
	LiqPrice float64 `json:"liquidation_price"`
}

// Position is the authoritative local view of the symbol's exposure.
// Invariant: Long.Size >= 0 and Short.Size <= 0. Sign conversion from the
// venue's unsigned magnitudes happens during snapshot and event
// normalization, nowhere else.
type Position struct {
	Long  PositionLeg `json:"long"`
	Short PositionLeg `json:"short"`
}

// Flat reports whether neither leg holds size.
func (p Position) Flat() bool {
	return p.Long.Size == 0 && p.Short.Size == 0
}
