// Package policy resolves which recipient groups, channels and roles an event is routed to.
package policy

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/repo"
)

type Resolver struct {
	policies repo.PolicyRepo
}

func New(policies repo.PolicyRepo) *Resolver {
	return &Resolver{policies: policies}
}

// Resolve looks up client-scoped policies first, then the defaults, and
// merges both per (channel, role) bucket.
func (r *Resolver) Resolve(
	ctx context.Context,
	service, topic string,
	clientID *string,
	severity entity.Severity,
) ([]entity.Assignment, error) {
	var scoped []*entity.RoutingPolicy

	// 1. client-scoped
	if clientID != nil && *clientID != "" {
		var err error
		scoped, err = r.policies.ListEnabled(ctx, service, topic, clientID)
		if err != nil {
			return nil, fmt.Errorf("Resolver - Resolve - r.policies.ListEnabled(client): %w", err)
		}
	}

	// 2. defaults
	defaults, err := r.policies.ListEnabled(ctx, service, topic, nil)
	if err != nil {
		return nil, fmt.Errorf("Resolver - Resolve - r.policies.ListEnabled(default): %w", err)
	}

	return Select(append(scoped, defaults...), severity), nil
}

type bucket struct {
	channel entity.Channel
	role    entity.Role
}

// Select keeps one policy per (channel, role): client-specific beats default
// regardless of priority, then higher priority, then lower policy id.
// Disabled, non-outbound and severity-excluded policies never compete.
func Select(policies []*entity.RoutingPolicy, severity entity.Severity) []entity.Assignment {
	winners := make(map[bucket]*entity.RoutingPolicy)

	for _, p := range policies {
		if p == nil || !p.Enabled || !p.Channel.IsOutbound() {
			continue
		}
		if p.MinSeverity != nil && !severity.AtLeast(*p.MinSeverity) {
			continue
		}

		key := bucket{channel: p.Channel, role: p.Role}
		if cur, ok := winners[key]; !ok || outranks(p, cur) {
			winners[key] = p
		}
	}

	out := make([]entity.Assignment, 0, len(winners))
	for _, p := range winners {
		out = append(out, entity.Assignment{
			PolicyID: p.ID,
			GroupID:  p.GroupID,
			Channel:  p.Channel,
			Role:     p.Role,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel.Less(out[j].Channel)
		}
		return out[i].Role.Outranks(out[j].Role)
	})

	return out
}

func outranks(a, b *entity.RoutingPolicy) bool {
	if a.IsClientSpecific() != b.IsClientSpecific() {
		return a.IsClientSpecific()
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
