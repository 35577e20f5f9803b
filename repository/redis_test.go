package repository

import (
	"testing"

	"chat-keystore/models"
)

func TestRedisKeys_NoCollisions(t *testing.T) {
	userIDs := []string{"users", "default_user", "", ":users", "user:users", "a:b"}

	for _, id := range userIDs {
		if got := redisUserKey(id); got == redisUsersKey {
			t.Errorf("redisUserKey(%q) = %q collides with the users index", id, got)
		}
		for _, p := range models.Providers() {
			if got := redisTokenKey(id, p.Name); got == redisUsersKey || got == redisUserKey(id) {
				t.Errorf("redisTokenKey(%q, %s) = %q collides with an index key", id, p.Name, got)
			}
		}
	}

	if redisUserKey("users") != "apitokens:user:users" {
		t.Errorf("redisUserKey(users) = %q", redisUserKey("users"))
	}
}
