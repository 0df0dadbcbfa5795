// Package id generates take identifiers.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique take ID.
// Format: take-<timestamp>-<random>
// Example: take-1701432000-a1b2c3d4
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("take-%d-%s", time.Now().Unix(), random[:8])
}
