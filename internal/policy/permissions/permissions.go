// Package permissions maps Telegram chat membership to moderation rights.
package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// CanModerate reports whether member may mute, unmute, ban and inspect users.
func CanModerate(member *api.ChatMember) bool {
	switch {
	case member == nil:
		return false
	case member.IsCreator():
		return true
	case !member.IsAdministrator():
		return false
	}
	return member.CanRestrictMembers || member.CanManageChat && member.CanPromoteMembers
}
