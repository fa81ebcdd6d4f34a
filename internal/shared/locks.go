package shared

import "fmt"

// IntegrityScanLockKey builds the redis key guarding the backorder integrity scan.
func IntegrityScanLockKey(scope string) string {
	if scope == "" {
		scope = "global"
	}
	return fmt.Sprintf("fulfillment:integrity:%s:lock", scope)
}
