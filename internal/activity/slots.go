package activity

import (
	"fmt"
	"strings"
)

const legacyCoHostMarker = "co-host"

// EffectiveKind returns the kind a slot is credited as.
//
// Compatibility shim: untagged slots created before RoleKind existed are
// classified by a case-insensitive "co-host" substring on their name or id.
// Remove once every stored slot carries a kind.
func EffectiveKind(slot RoleSlot) RoleKind {
	if slot.Kind != RoleKindUntagged && slot.Kind.Valid() {
		return slot.Kind
	}
	if hasCoHostMarker(slot.Name) || hasCoHostMarker(slot.ID) {
		return RoleKindCoHost
	}
	return RoleKindParticipant
}

func hasCoHostMarker(s string) bool {
	return strings.Contains(strings.ToLower(s), legacyCoHostMarker)
}

// resolveSlot finds the slot a participation refers to, by id first and by
// index second. Events without a slot array fall back to the raw slot id.
func resolveSlot(ev HostedEvent, p EventParticipation) (RoleSlot, []Warning) {
	var warns []Warning
	if p.RoleSlotID != "" {
		for _, s := range ev.Slots {
			if s.ID == p.RoleSlotID {
				return checkKind(s, p, warns)
			}
		}
	}
	if p.SlotIndex >= 0 && p.SlotIndex < len(ev.Slots) {
		return checkKind(ev.Slots[p.SlotIndex], p, warns)
	}
	if len(ev.Slots) > 0 {
		warns = append(warns, Warning{
			Kind:    WarnSlotIndexOutOfRange,
			UserID:  p.UserID,
			Subject: ev.ID,
			Detail:  fmt.Sprintf("slot index %d outside %d defined slots", p.SlotIndex, len(ev.Slots)),
		})
	}
	return RoleSlot{ID: p.RoleSlotID}, warns
}

func checkKind(s RoleSlot, p EventParticipation, warns []Warning) (RoleSlot, []Warning) {
	if !s.Kind.Valid() {
		warns = append(warns, Warning{
			Kind:    WarnUnknownSlotKind,
			UserID:  p.UserID,
			Subject: p.EventID,
			Detail:  fmt.Sprintf("slot %q has unknown kind %q", s.ID, s.Kind),
		})
		s.Kind = RoleKindUntagged
	}
	return s, warns
}
