package workmanager

import (
	"crypto/sha1"
	"encoding/hex"

	"chronodownloader/internal/selector"
)

// WorkID computes the stable, deterministic work identity per §3:
// sha1_hex(normalize(title) + "|" + normalize(creator))[:10].
func WorkID(title, creator string) string {
	sum := sha1.Sum([]byte(selector.Normalize(title) + "|" + selector.Normalize(creator)))
	return hex.EncodeToString(sum[:])[:10]
}
