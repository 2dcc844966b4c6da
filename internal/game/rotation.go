package game

import "github.com/pigparty/pigparty/internal/models"

// nextActivePlayer returns the id of the active player whose turn order is
// the smallest one strictly greater than afterOrder, wrapping to the lowest
// active order when none is. It returns "" when nobody is active.
//
// Taking the pivot as an order rather than a player id lets Leave compute
// the successor of a player that has already been removed from the map.
func nextActivePlayer(room *models.Room, afterOrder int) string {
	var next, first *models.Player
	for _, p := range room.Players {
		if p.Status != models.PlayerStatusActive {
			continue
		}
		if first == nil || p.TurnOrder < first.TurnOrder {
			first = p
		}
		if p.TurnOrder > afterOrder && (next == nil || p.TurnOrder < next.TurnOrder) {
			next = p
		}
	}
	if next != nil {
		return next.ID
	}
	if first != nil {
		return first.ID
	}
	return ""
}
