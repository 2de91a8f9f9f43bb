package mailindex

// applyFlagChanges updates the header's live counters and lowwater marks
// for a record's flags moving from old to new. It does not touch
// messages_count; callers adjust that separately around append/expunge.
func applyFlagChanges(h *Header, uid, old, new uint32) {
	turnedOn, turnedOff := flagChanges(old, new)

	if turnedOn&FlagSeen != 0 {
		h.SeenMessagesCount++
		if h.SeenMessagesCount == h.MessagesCount {
			// nothing left unseen; the lowwater becomes "everything
			// below the next assigned UID is seen"
			h.FirstUnseenUIDLowwater = h.NextUID
		}
	}
	if turnedOff&FlagSeen != 0 {
		if h.SeenMessagesCount > 0 {
			h.SeenMessagesCount--
		}
		if h.FirstUnseenUIDLowwater == 0 || uid < h.FirstUnseenUIDLowwater {
			h.FirstUnseenUIDLowwater = uid
		}
	}
	// a record landing in the unseen state without a SEEN transition (e.g.
	// appended without SEEN set) still needs to pull the lowwater down to
	// it, same as turning SEEN off explicitly would.
	if turnedOn&FlagSeen == 0 && turnedOff&FlagSeen == 0 && new&FlagSeen == 0 {
		if h.FirstUnseenUIDLowwater == 0 || uid < h.FirstUnseenUIDLowwater {
			h.FirstUnseenUIDLowwater = uid
		}
	}

	if turnedOn&FlagDeleted != 0 {
		h.DeletedMessagesCount++
		if h.DeletedMessagesCount == 1 {
			h.FirstDeletedUIDLowwater = uid
		}
	}
	if turnedOff&FlagDeleted != 0 {
		if h.DeletedMessagesCount > 0 {
			h.DeletedMessagesCount--
		}
		if h.FirstDeletedUIDLowwater == 0 || uid < h.FirstDeletedUIDLowwater {
			h.FirstDeletedUIDLowwater = uid
		}
	}
}
