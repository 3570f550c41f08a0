package ledger

import "github.com/ethereum/go-ethereum/common"

// Role names the authority an address holds on a vault.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleSigner   Role = "SIGNER_ROLE"
	RoleWithdraw Role = "WITHDRAW_ROLE"
	RoleOperator Role = "OPERATOR_ROLE"
	RoleRefund   Role = "REFUND_ROLE"
)

// RoleSet is the vault's role assignments. Not safe for concurrent use on
// its own; the owning vault serializes access.
type RoleSet struct {
	members map[Role]map[common.Address]bool
}

func NewRoleSet(admin common.Address) *RoleSet {
	rs := &RoleSet{members: make(map[Role]map[common.Address]bool)}
	rs.grant(RoleAdmin, admin)
	return rs
}

func (rs *RoleSet) grant(role Role, addr common.Address) {
	if rs.members[role] == nil {
		rs.members[role] = make(map[common.Address]bool)
	}
	rs.members[role][addr] = true
}

// Has reports whether addr holds role.
func (rs *RoleSet) Has(role Role, addr common.Address) bool {
	return rs.members[role][addr]
}

// Require rejects the call unless addr holds role.
func (rs *RoleSet) Require(role Role, addr common.Address) error {
	if !rs.Has(role, addr) {
		return reject(CodeUnauthorized, "account %s is missing role %s", addr.Hex(), role)
	}
	return nil
}

// Grant assigns role to addr. Only an admin may grant, including granting
// RoleAdmin itself.
func (rs *RoleSet) Grant(caller common.Address, role Role, addr common.Address) error {
	if err := rs.Require(RoleAdmin, caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return reject(CodeZeroAddress, "cannot grant %s to the zero address", role)
	}
	rs.grant(role, addr)
	return nil
}

// Revoke removes role from addr. Admin-gated like Grant.
func (rs *RoleSet) Revoke(caller common.Address, role Role, addr common.Address) error {
	if err := rs.Require(RoleAdmin, caller); err != nil {
		return err
	}
	delete(rs.members[role], addr)
	return nil
}
