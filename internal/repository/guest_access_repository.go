package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// GuestAccessRepository tracks PIN attempts and course grants for guest sessions.
type GuestAccessRepository struct {
	client *redis.Client
}

// NewGuestAccessRepository constructs the repository.
func NewGuestAccessRepository(client *redis.Client) *GuestAccessRepository {
	return &GuestAccessRepository{client: client}
}

func pinAttemptsKey(courseID int64, clientIP string) string {
	return fmt.Sprintf("pin_attempts:%d:%s", courseID, clientIP)
}

func guestGrantsKey(sessionID string) string {
	return "guest:" + sessionID + ":courses"
}

// ReserveAttempt counts a PIN attempt before the PIN is checked and returns the
// attempts made in the current window, this one included. INCR and EXPIRE NX run in
// one transaction, so concurrent guesses each see a distinct count. The window starts
// at the first attempt and is not extended by later ones.
func (r *GuestAccessRepository) ReserveAttempt(ctx context.Context, courseID int64, clientIP string, window time.Duration) (int, error) {
	key := pinAttemptsKey(courseID, clientIP)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reserve pin attempt: %w", err)
	}
	return int(incr.Val()), nil
}

// ResetPinAttempts clears the attempt counter.
func (r *GuestAccessRepository) ResetPinAttempts(ctx context.Context, courseID int64, clientIP string) error {
	if err := r.client.Del(ctx, pinAttemptsKey(courseID, clientIP)).Err(); err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}

// Grant adds a course to the guest session and refreshes the session lifetime.
func (r *GuestAccessRepository) Grant(ctx context.Context, sessionID string, courseID int64, ttl time.Duration) error {
	key := guestGrantsKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, strconv.FormatInt(courseID, 10))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("grant guest access: %w", err)
	}
	return nil
}

// HasAnyGrant reports whether the guest session was authorized for any course.
func (r *GuestAccessRepository) HasAnyGrant(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.SCard(ctx, guestGrantsKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("count guest grants: %w", err)
	}
	return n > 0, nil
}

// HasGrant reports whether the guest session was authorized for the course.
func (r *GuestAccessRepository) HasGrant(ctx context.Context, sessionID string, courseID int64) (bool, error) {
	ok, err := r.client.SIsMember(ctx, guestGrantsKey(sessionID), strconv.FormatInt(courseID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("check guest access: %w", err)
	}
	return ok, nil
}
