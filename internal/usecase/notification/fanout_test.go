package notification

import (
	"testing"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut_OneRolePerContactAndChannel(t *testing.T) {
	t.Parallel()

	shared := contact("shared@example.com", "+15550100")
	g1, g2, g3 := uuid.New(), uuid.New(), uuid.New()

	assignments := []entity.Assignment{
		{PolicyID: uuid.New(), GroupID: g1, Channel: entity.ChannelEmail, Role: entity.RoleBcc},
		{PolicyID: uuid.New(), GroupID: g2, Channel: entity.ChannelEmail, Role: entity.RoleCc},
		{PolicyID: uuid.New(), GroupID: g3, Channel: entity.ChannelEmail, Role: entity.RoleTo},
		{PolicyID: uuid.New(), GroupID: g1, Channel: entity.ChannelSMS, Role: entity.RoleTo},
	}
	members := map[uuid.UUID][]*entity.Contact{
		g1: {shared},
		g2: {shared},
		g3: {shared},
	}

	got := FanOut(uuid.New(), assignments, members, time.Now())
	require.Len(t, got, 2)

	assert.Equal(t, entity.ChannelEmail, got[0].Channel)
	assert.Equal(t, entity.RoleTo, got[0].Role)
	assert.Equal(t, assignments[2].PolicyID, got[0].PolicyID)
	assert.Equal(t, "shared@example.com", got[0].RecipientAddress)

	assert.Equal(t, entity.ChannelSMS, got[1].Channel)
	assert.Equal(t, "+15550100", got[1].RecipientAddress)
}

func TestFanOut_FiltersInactiveAndAddressless(t *testing.T) {
	t.Parallel()

	g := uuid.New()
	inactive := contact("gone@example.com", "")
	inactive.Active = false
	phoneOnly := contact("", "+15550100")

	members := map[uuid.UUID][]*entity.Contact{g: {inactive, phoneOnly}}

	email := FanOut(uuid.New(), []entity.Assignment{{GroupID: g, Channel: entity.ChannelEmail, Role: entity.RoleTo}}, members, time.Now())
	assert.Empty(t, email)

	sms := FanOut(uuid.New(), []entity.Assignment{{GroupID: g, Channel: entity.ChannelSMS, Role: entity.RoleTo}}, members, time.Now())
	require.Len(t, sms, 1)
	assert.Equal(t, phoneOnly.ID, sms[0].ContactID)

	// chat destinations are resolved later, so the contact is kept
	chat := FanOut(uuid.New(), []entity.Assignment{{GroupID: g, Channel: entity.ChannelChat, Role: entity.RoleTo}}, members, time.Now())
	require.Len(t, chat, 1)
	assert.Empty(t, chat[0].RecipientAddress)
}

func TestFanOut_CountMatchesDistinctRecipients(t *testing.T) {
	t.Parallel()

	gA, gB := uuid.New(), uuid.New()
	a, b, c := contact("a@x", ""), contact("b@x", ""), contact("c@x", "")

	got := FanOut(uuid.New(), []entity.Assignment{
		{GroupID: gA, Channel: entity.ChannelEmail, Role: entity.RoleTo},
		{GroupID: gB, Channel: entity.ChannelEmail, Role: entity.RoleCc},
	}, map[uuid.UUID][]*entity.Contact{
		gA: {a, b},
		gB: {b, c},
	}, time.Now())

	assert.Len(t, got, 3)
}
