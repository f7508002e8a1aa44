package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func pol(id string, client *string, ch entity.Channel, role entity.Role, priority int, group uuid.UUID) *entity.RoutingPolicy {
	return &entity.RoutingPolicy{
		ID:       uuid.MustParse(id),
		Service:  "CensusReconciliation",
		Topic:    "ReconciliationComplete",
		ClientID: client,
		Channel:  ch,
		GroupID:  group,
		Role:     role,
		Enabled:  true,
		Priority: priority,
	}
}

const (
	id1 = "00000000-0000-0000-0000-000000000001"
	id2 = "00000000-0000-0000-0000-000000000002"
	id3 = "00000000-0000-0000-0000-000000000003"
)

func TestSelect_ClientWinsRegardlessOfPriority(t *testing.T) {
	t.Parallel()

	client, def := uuid.New(), uuid.New()
	got := Select([]*entity.RoutingPolicy{
		pol(id1, nil, entity.ChannelEmail, entity.RoleTo, 100, def),
		pol(id2, ptr("HenryCounty"), entity.ChannelEmail, entity.RoleTo, 0, client),
	}, entity.SeverityInfo)

	require.Len(t, got, 1)
	assert.Equal(t, client, got[0].GroupID)
	assert.Equal(t, uuid.MustParse(id2), got[0].PolicyID)
}

func TestSelect_PerBucketInheritance(t *testing.T) {
	t.Parallel()

	groupX, groupY, groupS := uuid.New(), uuid.New(), uuid.New()
	got := Select([]*entity.RoutingPolicy{
		pol(id1, ptr("HenryCounty"), entity.ChannelEmail, entity.RoleTo, 0, groupX),
		pol(id2, nil, entity.ChannelEmail, entity.RoleCc, 0, groupY),
		pol(id3, nil, entity.ChannelSMS, entity.RoleTo, 0, groupS),
	}, entity.SeverityInfo)

	require.Len(t, got, 3)
	assert.Equal(t, entity.Assignment{PolicyID: uuid.MustParse(id1), GroupID: groupX, Channel: entity.ChannelEmail, Role: entity.RoleTo}, got[0])
	assert.Equal(t, entity.Assignment{PolicyID: uuid.MustParse(id2), GroupID: groupY, Channel: entity.ChannelEmail, Role: entity.RoleCc}, got[1])
	assert.Equal(t, entity.Assignment{PolicyID: uuid.MustParse(id3), GroupID: groupS, Channel: entity.ChannelSMS, Role: entity.RoleTo}, got[2])
}

func TestSelect_PriorityThenID(t *testing.T) {
	t.Parallel()

	low, high, tie := uuid.New(), uuid.New(), uuid.New()

	got := Select([]*entity.RoutingPolicy{
		pol(id1, nil, entity.ChannelEmail, entity.RoleTo, 1, low),
		pol(id2, nil, entity.ChannelEmail, entity.RoleTo, 5, high),
	}, entity.SeverityInfo)
	require.Len(t, got, 1)
	assert.Equal(t, high, got[0].GroupID)

	// equal priority: ascending id, independent of input order
	for _, order := range [][]*entity.RoutingPolicy{
		{pol(id3, nil, entity.ChannelEmail, entity.RoleTo, 5, low), pol(id2, nil, entity.ChannelEmail, entity.RoleTo, 5, tie)},
		{pol(id2, nil, entity.ChannelEmail, entity.RoleTo, 5, tie), pol(id3, nil, entity.ChannelEmail, entity.RoleTo, 5, low)},
	} {
		got = Select(order, entity.SeverityInfo)
		require.Len(t, got, 1)
		assert.Equal(t, tie, got[0].GroupID)
	}
}

func TestSelect_Filters(t *testing.T) {
	t.Parallel()

	g := uuid.New()

	disabled := pol(id1, nil, entity.ChannelEmail, entity.RoleTo, 0, g)
	disabled.Enabled = false

	inApp := pol(id2, nil, entity.ChannelInApp, entity.RoleTo, 0, g)

	critical := pol(id3, ptr("HenryCounty"), entity.ChannelSMS, entity.RoleTo, 0, g)
	critical.MinSeverity = ptr(entity.SeverityCritical)

	assert.Empty(t, Select([]*entity.RoutingPolicy{disabled, inApp, critical}, entity.SeverityError))
	assert.Len(t, Select([]*entity.RoutingPolicy{critical}, entity.SeverityCritical), 1)
}

func TestSelect_SeverityExcludedClientDoesNotShadowDefault(t *testing.T) {
	t.Parallel()

	client, def := uuid.New(), uuid.New()
	strict := pol(id1, ptr("HenryCounty"), entity.ChannelEmail, entity.RoleTo, 0, client)
	strict.MinSeverity = ptr(entity.SeverityError)

	got := Select([]*entity.RoutingPolicy{strict, pol(id2, nil, entity.ChannelEmail, entity.RoleTo, 0, def)}, entity.SeverityWarning)
	require.Len(t, got, 1)
	assert.Equal(t, def, got[0].GroupID)
}

type fakePolicies struct {
	byClient map[string][]*entity.RoutingPolicy
	defaults []*entity.RoutingPolicy
	calls    []*string
	err      error
}

func (f *fakePolicies) ListEnabled(_ context.Context, _, _ string, clientID *string) ([]*entity.RoutingPolicy, error) {
	f.calls = append(f.calls, clientID)
	if f.err != nil {
		return nil, f.err
	}
	if clientID == nil {
		return f.defaults, nil
	}
	return f.byClient[*clientID], nil
}

func TestResolve_TwoPhaseLookup(t *testing.T) {
	t.Parallel()

	groupX, groupY := uuid.New(), uuid.New()
	repo := &fakePolicies{
		byClient: map[string][]*entity.RoutingPolicy{
			"HenryCounty": {pol(id1, ptr("HenryCounty"), entity.ChannelEmail, entity.RoleTo, 0, groupX)},
		},
		defaults: []*entity.RoutingPolicy{pol(id2, nil, entity.ChannelEmail, entity.RoleCc, 0, groupY)},
	}

	got, err := New(repo).Resolve(context.Background(), "CensusReconciliation", "ReconciliationComplete", ptr("HenryCounty"), entity.SeverityInfo)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, groupX, got[0].GroupID)
	assert.Equal(t, groupY, got[1].GroupID)
	require.Len(t, repo.calls, 2)
	assert.Equal(t, "HenryCounty", *repo.calls[0])
	assert.Nil(t, repo.calls[1])
}

func TestResolve_NoClientSkipsScopedLookup(t *testing.T) {
	t.Parallel()

	repo := &fakePolicies{}
	got, err := New(repo).Resolve(context.Background(), "s", "t", nil, entity.SeverityInfo)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, repo.calls, 1)
}

func TestResolve_RepoError(t *testing.T) {
	t.Parallel()

	_, err := New(&fakePolicies{err: errors.New("db down")}).Resolve(context.Background(), "s", "t", nil, entity.SeverityInfo)
	require.Error(t, err)
}
