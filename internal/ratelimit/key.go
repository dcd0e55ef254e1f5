package ratelimit

import "fmt"

// KeyForUser builds a limiter key for a user-scoped action.
func KeyForUser(userID uint64, action string) string {
	if userID == 0 || action == "" {
		return ""
	}
	return fmt.Sprintf("u:%d:%s", userID, action)
}
