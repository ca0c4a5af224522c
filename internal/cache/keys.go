package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func UsageWindowKey(keyID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", keyID)
}
