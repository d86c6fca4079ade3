package feed

import "context"

// TargetResolver decides whose feeds receive an activity.
type TargetResolver interface {
	Targets(ctx context.Context, a Activity) ([]int64, error)
}

// SelfResolver delivers an activity to the actor's own feed only.
type SelfResolver struct{}

// Targets implements TargetResolver.
func (SelfResolver) Targets(ctx context.Context, a Activity) ([]int64, error) {
	return []int64{a.ActorID}, nil
}

// FollowerSource lists the users following a user.
type FollowerSource interface {
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// FollowerResolver delivers an activity to the actor and every follower of the actor.
type FollowerResolver struct {
	Followers FollowerSource
}

// NewFollowerResolver creates a FollowerResolver.
func NewFollowerResolver(src FollowerSource) *FollowerResolver {
	return &FollowerResolver{Followers: src}
}

// Targets implements TargetResolver. The actor always comes first and
// every user appears once.
func (r *FollowerResolver) Targets(ctx context.Context, a Activity) ([]int64, error) {
	followers, err := r.Followers.FollowerIDs(ctx, a.ActorID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(followers)+1)
	out := make([]int64, 0, len(followers)+1)
	for _, id := range append([]int64{a.ActorID}, followers...) {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
