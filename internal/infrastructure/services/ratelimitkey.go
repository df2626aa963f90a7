package services

import (
	"strings"

	"github.com/sophialabs/stubkit/internal/domain/match"
	"github.com/sophialabs/stubkit/internal/domain/stub"
)

// RateLimitKey returns the bucket key of a request matched by stub stubID.
//
// An empty key shares one bucket per stub. "header:<name>" and
// "query:<name>" give every distinct value of that request field its own
// bucket. Any other key is used literally, letting stubs share a bucket.
func RateLimitKey(stubID string, rl *stub.RateLimit, s *match.Snapshot) string {
	key := strings.TrimSpace(rl.Key)
	switch {
	case key == "":
		return "stub:" + stubID
	case strings.HasPrefix(key, "header:"):
		v, _ := s.Header(strings.TrimPrefix(key, "header:"))
		return "stub:" + stubID + "|" + key + "=" + v
	case strings.HasPrefix(key, "query:"):
		name := strings.TrimPrefix(key, "query:")
		return "stub:" + stubID + "|" + key + "=" + s.Query[name]
	default:
		return key
	}
}
