package redis

import (
	"strings"
)

var (
	App     = "custody" // project code
	Env     = "dev"     // dev|stg|prod
	Version = "v1"      // schema version for easy bust
)

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func pfx() string {
	return join(App, Env, Version)
}

// WalletLockKey is the per-wallet send lock
func WalletLockKey(walletID string) string {
	return join(pfx(), "lock", "wallet", walletID)
}
