package ledger

import "time"

// SeedWallet is a test helper that installs a wallet directly when using the
// in-memory store.
func SeedWallet(s Store, w Wallet) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.wallets[w.ID] = w
	}
}

// SetLockTimeout is a test helper that adjusts how long the in-memory store
// waits for a wallet lock.
func SetLockTimeout(s Store, d time.Duration) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.lockTimeout = d
	}
}
