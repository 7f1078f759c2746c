package custody

import "math/big"

// SeedBalance is a test helper that overwrites an account balance when using the
// in-memory vault. It bypasses the journal, so no postings are recorded.
func SeedBalance(v Vault, code string, amount *big.Int) {
	if mem, ok := v.(*inMemoryVault); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[code] = new(big.Int).Set(amount)
	}
}
