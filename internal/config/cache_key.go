package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the token id of a user's
// latest login.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AuthRateLimitKey returns the counter key for auth calls from one client IP.
func (r *CacheKeyStruct) AuthRateLimitKey(ip string) string {
	return fmt.Sprintf("ratelimit:auth:%s", ip)
}

// GradingLockKey returns the key that keeps two workers off the same attempt.
func (r *CacheKeyStruct) GradingLockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:grading", attemptID)
}

var CacheKey = NewCacheKeyStruct()
