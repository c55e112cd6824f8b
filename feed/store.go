// Package feed stores posts in the key-value store under composite keys that
// encode identity and creation time.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kvfeed/kvfeed/kv"
	"github.com/kvfeed/kvfeed/models"
)

// Namespace is the store namespace holding one key per post.
const Namespace = "posts"

// KeySep separates the two key components. It cannot appear in an RFC 3339
// timestamp and is rejected in usernames at the validation boundary, so a
// key splits unambiguously.
const KeySep = "|"

// PostKey builds the canonical store key for a post. Every write and every
// reconstruction path goes through this one function; the username comes
// first so enumerating a single user's posts is a prefix scan if the store
// ever grows one.
func PostKey(username, timestamp string) string {
	return username + KeySep + timestamp
}

// Store creates, lists and updates posts.
type Store struct {
	store kv.Store
	now   func() time.Time
}

func NewStore(store kv.Store) *Store {
	return &Store{store: store, now: time.Now}
}

// Create stamps the post with the current UTC time, never trusting a
// client-supplied one, and writes it under its canonical key. The stored
// post, including the stamped time, is returned.
func (s *Store) Create(ctx context.Context, post models.Post) (models.Post, error) {
	post.Time = s.now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(post)
	if err != nil {
		return models.Post{}, fmt.Errorf("encoding post: %w", err)
	}
	if err := s.store.Put(ctx, Namespace, PostKey(post.Username, post.Time), string(b)); err != nil {
		return models.Post{}, err
	}
	return post, nil
}

// List returns all posts, newest first. The store enumerates keys in no
// useful order, so ordering is imposed here after decoding. A key that lists
// but has no readable value yet (the store is eventually consistent) is
// skipped rather than failing the whole read.
func (s *Store) List(ctx context.Context) ([]models.Post, error) {
	keys, err := s.store.ListKeys(ctx, Namespace)
	if err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(keys))
	for _, key := range keys {
		val, err := s.store.Get(ctx, Namespace, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var post models.Post
		if err := json.Unmarshal([]byte(val), &post); err != nil {
			return nil, fmt.Errorf("decoding post %s: %w", key, err)
		}
		posts = append(posts, post)
	}

	sort.Slice(posts, func(i, j int) bool {
		ti := parseTime(posts[i].Time)
		tj := parseTime(posts[j].Time)
		if ti.Equal(tj) {
			return posts[i].Username < posts[j].Username
		}
		return ti.After(tj)
	})
	return posts, nil
}

// ApplyLike overwrites the stored post with the incoming body, which the
// caller is trusted to have already incremented, under the key reconstructed
// from the post's own username and time. A single put replaces the previous
// delete-then-put, so the post is never briefly absent. Concurrent like
// updates on the same key remain last-write-wins: two that read the same
// prior count lose one increment, an accepted bounded loss under contention.
func (s *Store) ApplyLike(ctx context.Context, post models.Post) error {
	b, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	return s.store.Put(ctx, Namespace, PostKey(post.Username, post.Time), string(b))
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
