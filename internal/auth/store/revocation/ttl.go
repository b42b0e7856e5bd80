// Package revocation keeps the JTIs of revoked access tokens until the tokens
// would have expired on their own.
package revocation

import (
	"fmt"
	"time"
)

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return nil
}
