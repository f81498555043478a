package models

// Tier is one price-threshold/amount rule at a given level for a given side.
type Tier struct {
	Key         TierKey `json:"key"`
	TargetPrice float64 `json:"target_price"` // cents
	Amount      float64 `json:"amount"`       // USD
	Enabled     bool    `json:"enabled"`
	Description string  `json:"description,omitempty"`
}

// TierTable is the fixed UP/DOWN x level table of tiers.
// Tables decoded from storage must be normalized before use.
type TierTable [2][MaxLevel]Tier

// NewTierTable returns a table with every key populated and all tiers disabled.
func NewTierTable() TierTable {
	var t TierTable
	t.Normalize()
	return t
}

// Normalize stamps each slot with its key.
func (t *TierTable) Normalize() {
	for _, side := range Sides {
		for i := range t[side.index()] {
			t[side.index()][i].Key = TierKey{Side: side, Level: Level(i + 1)}
		}
	}
}

// Get returns the tier for key. Invalid keys return the zero Tier.
func (t *TierTable) Get(key TierKey) (Tier, bool) {
	p := t.ptr(key)
	if p == nil {
		return Tier{}, false
	}
	return *p, true
}

// Set stores tier at tier.Key.
func (t *TierTable) Set(tier Tier) bool {
	p := t.ptr(tier.Key)
	if p == nil {
		return false
	}
	*p = tier
	return true
}

// SetEnabled toggles one tier.
func (t *TierTable) SetEnabled(key TierKey, enabled bool) bool {
	p := t.ptr(key)
	if p == nil {
		return false
	}
	p.Enabled = enabled
	return true
}

// EnableAll re-arms every tier.
func (t *TierTable) EnableAll() {
	for s := range t {
		for i := range t[s] {
			t[s][i].Enabled = true
		}
	}
}

// SetAmount writes amount into the same level on both sides.
func (t *TierTable) SetAmount(level Level, amount float64) {
	if !level.Valid() {
		return
	}
	for s := range t {
		t[s][level-1].Amount = amount
	}
}

// OnSide returns a copy of one side's tiers in level order.
func (t *TierTable) OnSide(side Side) []Tier {
	out := make([]Tier, MaxLevel)
	copy(out, t[side.index()][:])
	return out
}

// All returns every tier, UP levels first.
func (t *TierTable) All() []Tier {
	out := make([]Tier, 0, 2*MaxLevel)
	for _, side := range Sides {
		out = append(out, t.OnSide(side)...)
	}
	return out
}

func (t *TierTable) ptr(key TierKey) *Tier {
	if !key.Side.Valid() || !key.Level.Valid() {
		return nil
	}
	return &t[key.Side.index()][key.Level-1]
}
