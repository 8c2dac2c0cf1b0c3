package transport

import (
	"fmt"
	"strings"
)

// Channel is one logical stream multiplexed over the transport.
type Channel string

const (
	ChannelRoomEvents      Channel = "room-events"
	ChannelCallSignaling   Channel = "call-signaling"
	ChannelCallInvitations Channel = "call-invitations"
)

// UserAddress is the private address of one user on a channel.
func UserAddress(userID string, ch Channel) string {
	return fmt.Sprintf("user.%s.%s", userID, ch)
}

// RoomAddress is the broadcast address of one room on a channel.
func RoomAddress(roomID string, ch Channel) string {
	return fmt.Sprintf("room.%s.%s", roomID, ch)
}

// parseRoomAddress extracts the room id from a room broadcast address.
func parseRoomAddress(address string) (string, bool) {
	parts := strings.SplitN(address, ".", 3)
	if len(parts) != 3 || parts[0] != "room" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// PrivateAddresses returns every private address of a user. Connections
// subscribe to these on attach.
func PrivateAddresses(userID string) []string {
	return []string{
		UserAddress(userID, ChannelRoomEvents),
		UserAddress(userID, ChannelCallSignaling),
		UserAddress(userID, ChannelCallInvitations),
	}
}
