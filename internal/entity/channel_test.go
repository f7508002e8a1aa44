package entity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	t.Parallel()

	c, err := ParseChannel(" EMAIL ")
	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, c)

	c, err = ParseChannel("in_app")
	require.NoError(t, err)
	assert.False(t, c.IsOutbound())

	_, err = ParseChannel("fax")
	assert.Error(t, err)
}

func TestChannel_Less(t *testing.T) {
	t.Parallel()

	got := []Channel{ChannelChat, "push", ChannelSMS, ChannelEmail}
	sort.Slice(got, func(i, j int) bool { return got[i].Less(got[j]) })

	assert.Equal(t, []Channel{ChannelEmail, ChannelSMS, ChannelChat, "push"}, got)
}

func TestRole_Outranks(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleTo.Outranks(RoleCc))
	assert.True(t, RoleCc.Outranks(RoleBcc))
	assert.False(t, RoleBcc.Outranks(RoleTo))
	assert.False(t, RoleTo.Outranks(RoleTo))

	_, err := ParseRole("reply-to")
	assert.Error(t, err)
}

func TestSeverity_AtLeast(t *testing.T) {
	t.Parallel()

	assert.True(t, SeverityCritical.AtLeast(SeverityError))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))

	s, err := ParseSeverity("Error")
	require.NoError(t, err)
	assert.Equal(t, SeverityError, s)

	_, err = ParseSeverity("loud")
	assert.Error(t, err)
}

func TestContact_AddressFor(t *testing.T) {
	t.Parallel()

	c := &Contact{Email: "a@x.io", Phone: "+15550100"}

	assert.Equal(t, "a@x.io", c.AddressFor(ChannelEmail))
	assert.Equal(t, "+15550100", c.AddressFor(ChannelSMS))
	assert.Empty(t, c.AddressFor(ChannelChat))
}
