package bootstrap

import (
	"log/slog"

	"github.com/tradeboard/gateway/internal/cryptoutil"
)

// CreateSealer creates an AES-GCM sealer for the refresh grace cache.
// It returns nil when the key is empty or unusable; callers then run without the cache.
//
//nolint:ireturn // Returning the Sealer interface keeps nil meaning "no cache".
func CreateSealer(key string, logger *slog.Logger) cryptoutil.Sealer {
	if key == "" {
		if logger != nil {
			logger.Warn("refresh cache encryption key is empty, refresh grace cache disabled")
		}
		return nil
	}

	keyBytes, err := cryptoutil.DeriveKey(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to derive refresh cache key, refresh grace cache disabled", "error", err)
		}
		return nil
	}

	sealer, err := cryptoutil.NewAESGCMSealer(keyBytes)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create sealer, refresh grace cache disabled", "error", err)
		}
		return nil
	}
	return sealer
}
