package mailindex

import "testing"

func TestUpdateHolesOnExpungeFirstHole(t *testing.T) {
	h := &Header{}
	updateHolesOnExpunge(h, slotToHolePosition(3))

	if got := holePositionToSlot(h.FirstHolePosition); got != 3 {
		t.Errorf("hole slot = %d, want 3", got)
	}
	if h.FirstHoleRecords != 1 {
		t.Errorf("FirstHoleRecords = %d, want 1", h.FirstHoleRecords)
	}
}

func TestUpdateHolesOnExpungeExtendsUpward(t *testing.T) {
	h := &Header{}
	updateHolesOnExpunge(h, slotToHolePosition(3))
	updateHolesOnExpunge(h, slotToHolePosition(4))

	if holePositionToSlot(h.FirstHolePosition) != 3 {
		t.Errorf("hole should still start at slot 3, got %d", holePositionToSlot(h.FirstHolePosition))
	}
	if h.FirstHoleRecords != 2 {
		t.Errorf("FirstHoleRecords = %d, want 2", h.FirstHoleRecords)
	}
	if h.Flags&FlagCompress != 0 {
		t.Error("adjacent hole should not request compress")
	}
}

func TestUpdateHolesOnExpungeExtendsDownward(t *testing.T) {
	h := &Header{}
	updateHolesOnExpunge(h, slotToHolePosition(3))
	updateHolesOnExpunge(h, slotToHolePosition(2))

	if holePositionToSlot(h.FirstHolePosition) != 2 {
		t.Errorf("hole should now start at slot 2, got %d", holePositionToSlot(h.FirstHolePosition))
	}
	if h.FirstHoleRecords != 2 {
		t.Errorf("FirstHoleRecords = %d, want 2", h.FirstHoleRecords)
	}
}

func TestUpdateHolesOnExpungeSecondDisjointHoleRequestsCompress(t *testing.T) {
	h := &Header{}
	updateHolesOnExpunge(h, slotToHolePosition(3))
	updateHolesOnExpunge(h, slotToHolePosition(10))

	if h.Flags&FlagCompress == 0 {
		t.Error("non-adjacent second hole should set FlagCompress")
	}
	if holePositionToSlot(h.FirstHolePosition) != 3 {
		t.Errorf("tracked hole should remain the earlier one, got slot %d", holePositionToSlot(h.FirstHolePosition))
	}
}

func TestUpdateHolesOnExpungeRelocatesToEarlierHole(t *testing.T) {
	h := &Header{}
	updateHolesOnExpunge(h, slotToHolePosition(10))
	updateHolesOnExpunge(h, slotToHolePosition(3))

	if h.Flags&FlagCompress == 0 {
		t.Error("non-adjacent second hole should set FlagCompress")
	}
	if holePositionToSlot(h.FirstHolePosition) != 3 {
		t.Errorf("tracked hole should relocate to the earlier slot, got %d", holePositionToSlot(h.FirstHolePosition))
	}
	if h.FirstHoleRecords != 1 {
		t.Errorf("relocated hole run should reset to 1 record, got %d", h.FirstHoleRecords)
	}
}

func TestResetHoles(t *testing.T) {
	h := &Header{FirstHolePosition: 100, FirstHoleRecords: 5}
	resetHoles(h)

	if h.FirstHolePosition != 0 || h.FirstHoleRecords != 0 {
		t.Errorf("resetHoles left %+v, want both zero", h)
	}
}
