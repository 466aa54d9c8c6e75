package executor

import "mailwarden/internal/store"

// ResolveTargets resolves a task's account set at fire time.
//
// A set account id must belong to the owner; otherwise the set is empty and
// the run is a no-op. An empty account id means all of the owner's current
// accounts.
func ResolveTargets(accounts store.AccountStore, ownerID, accountID string) []store.Account {
	if accountID != "" {
		a, ok := accounts.Account(accountID)
		if !ok || a.OwnerID != ownerID {
			return nil
		}
		return []store.Account{a}
	}
	return accounts.AccountsByOwner(ownerID)
}
