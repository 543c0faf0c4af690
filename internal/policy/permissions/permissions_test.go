package permissions

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
)

func TestCanModerate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		member *api.ChatMember
		want   bool
	}{
		{name: "nil", member: nil, want: false},
		{name: "creator", member: &api.ChatMember{Status: "creator"}, want: true},
		{name: "plain member", member: &api.ChatMember{Status: "member", CanRestrictMembers: true}, want: false},
		{name: "admin without rights", member: &api.ChatMember{Status: "administrator"}, want: false},
		{name: "admin who restricts", member: &api.ChatMember{Status: "administrator", CanRestrictMembers: true}, want: true},
		{name: "admin who only manages", member: &api.ChatMember{Status: "administrator", CanManageChat: true}, want: false},
		{name: "full manager", member: &api.ChatMember{Status: "administrator", CanManageChat: true, CanPromoteMembers: true}, want: true},
		{name: "left", member: &api.ChatMember{Status: "left"}, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CanModerate(tc.member))
		})
	}
}
