package ledger

import "math/big"

// ReplaySet records identifiers of operations already executed. Membership
// is permanent: an id is never removed, even when the operation fails after
// the id was consumed.
type ReplaySet struct {
	used map[string]bool
}

func NewReplaySet() *ReplaySet {
	return &ReplaySet{used: make(map[string]bool)}
}

// IsUsed reports whether id has been consumed.
func (r *ReplaySet) IsUsed(id *big.Int) bool {
	return r.used[id.String()]
}

// Consume marks id as used. code selects which replay error the caller's
// surface reports (orderId vs signId vocabulary).
func (r *ReplaySet) Consume(id *big.Int, code Code) error {
	key := id.String()
	if r.used[key] {
		return reject(code, "id %s", key)
	}
	r.used[key] = true
	return nil
}

// ConsumeOrder marks an orderId, rejecting duplicates with OrderAlreadyProcessed.
func (r *ReplaySet) ConsumeOrder(id *big.Int) error {
	return r.Consume(id, CodeOrderProcessed)
}

// ConsumeSignID marks a signId, rejecting duplicates with SignIdAlreadyUsed.
func (r *ReplaySet) ConsumeSignID(id *big.Int) error {
	return r.Consume(id, CodeSignIDUsed)
}

// HighWater tracks the highest signId seen per asset. It is independent of
// ReplaySet membership: a late-arriving unused id below the mark still
// executes, it just does not count as forward progress. Vaults consult it
// only to decide whether to run the reserve policy after a deposit.
type HighWater struct {
	marks map[Asset]*big.Int
}

func NewHighWater() *HighWater {
	return &HighWater{marks: make(map[Asset]*big.Int)}
}

// Advance records id for asset and reports whether it raised the mark.
func (h *HighWater) Advance(asset Asset, id *big.Int) bool {
	cur, ok := h.marks[asset]
	if ok && id.Cmp(cur) <= 0 {
		return false
	}
	h.marks[asset] = new(big.Int).Set(id)
	return true
}

// Mark returns the current high-water signId for asset, or nil.
func (h *HighWater) Mark(asset Asset) *big.Int {
	return h.marks[asset]
}
