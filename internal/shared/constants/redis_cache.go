package constants

import (
	"strconv"
	"time"
)

// Redis cache keys and TTLs
// Pattern: pixelevents:{module}:{operation}:{identifier}

const (
	CACHE_PREFIX = "pixelevents"
)

// ================== NOTIFICATIONS MODULE ==================

const (
	CACHE_KEY_INBOX = CACHE_PREFIX + ":notifications:inbox:" // + recipient-id, one hash field per page

	TTL_INBOX = 2 * time.Minute
)

// BuildInboxKey builds the cache key holding every cached page of one inbox
func BuildInboxKey(recipientID string) string {
	return CACHE_KEY_INBOX + recipientID
}

// BuildInboxField names one page inside the inbox key
func BuildInboxField(limit, offset int) string {
	return "limit:" + strconv.Itoa(limit) + ":offset:" + strconv.Itoa(offset)
}
