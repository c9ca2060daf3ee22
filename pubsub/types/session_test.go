package types

import "testing"

func Test_NewClientSession_Defaults(t *testing.T) {
	s := NewClientSession("1.2.3.4:5678")
	if s.RemoteAddress != "1.2.3.4:5678" {
		t.Fatalf("RemoteAddress = %q, want 1.2.3.4:5678", s.RemoteAddress)
	}
	if s.TrackMempoolBlock != -1 {
		t.Fatalf("TrackMempoolBlock = %d, want -1 (not tracking)", s.TrackMempoolBlock)
	}
	if s.Want(WantBlocks) {
		t.Fatalf("fresh session should not want any class")
	}
}

func Test_SetWant_NewlyOn(t *testing.T) {
	s := NewClientSession("")

	newlyOn := s.SetWant(map[WantClass]bool{WantBlocks: true, WantStats: true})
	if !newlyOn[WantBlocks] || !newlyOn[WantStats] {
		t.Fatalf("first SetWant should report both classes newly on, got %v", newlyOn)
	}
	if len(newlyOn) != 2 {
		t.Fatalf("first SetWant newlyOn = %v, want exactly 2 entries", newlyOn)
	}

	// Re-enabling the same classes (plus a new one) should only report the
	// new one as newly on.
	newlyOn = s.SetWant(map[WantClass]bool{WantBlocks: true, WantStats: true, WantTomahawk: true})
	if len(newlyOn) != 1 || !newlyOn[WantTomahawk] {
		t.Fatalf("second SetWant newlyOn = %v, want only tomahawk", newlyOn)
	}

	if !s.Want(WantBlocks) || !s.Want(WantStats) || !s.Want(WantTomahawk) {
		t.Fatalf("all three classes should be enabled after second SetWant")
	}
	if s.Want(WantMempoolBlocks) {
		t.Fatalf("mempool-blocks was never requested, should not be wanted")
	}
}

func Test_SetWant_TurningOff(t *testing.T) {
	s := NewClientSession("")
	s.SetWant(map[WantClass]bool{WantBlocks: true})
	newlyOn := s.SetWant(map[WantClass]bool{}) // turn everything off
	if len(newlyOn) != 0 {
		t.Fatalf("turning classes off should report no newly-on classes, got %v", newlyOn)
	}
	if s.Want(WantBlocks) {
		t.Fatalf("blocks should be off after an empty SetWant")
	}
}

func Test_Reset_ClearsEverything(t *testing.T) {
	s := NewClientSession("remote")
	s.SetWant(map[WantClass]bool{WantBlocks: true})
	s.TrackTx = "a"
	s.TrackAddress = "b"
	s.TrackAddresses = map[string]string{"x": "y"}
	s.TrackScriptpubkeys = []string{"51"}
	s.TrackAsset = "c"
	s.TrackMempoolBlock = 3
	s.TrackRbf = RbfAll
	s.TrackRbfSummary = true
	s.TrackDonation = "d"
	s.TrackBisqMarket = "btc_usd"

	s.Reset()

	if s.Want(WantBlocks) {
		t.Fatalf("Reset should clear want classes")
	}
	if s.TrackTx != "" || s.TrackAddress != "" || s.TrackAsset != "" ||
		s.TrackDonation != "" || s.TrackBisqMarket != "" {
		t.Fatalf("Reset should clear all string tracking slots")
	}
	if s.TrackAddresses != nil || s.TrackScriptpubkeys != nil {
		t.Fatalf("Reset should clear slice/map tracking slots")
	}
	if s.TrackMempoolBlock != -1 {
		t.Fatalf("Reset should restore TrackMempoolBlock to -1, got %d", s.TrackMempoolBlock)
	}
	if s.TrackRbf != RbfOff || s.TrackRbfSummary {
		t.Fatalf("Reset should clear RBF tracking")
	}
	// RemoteAddress is connection identity, not tracking state; Reset must
	// not touch it.
	if s.RemoteAddress != "remote" {
		t.Fatalf("Reset should not clear RemoteAddress")
	}
}

func Test_Snapshot_IsIndependentCopy(t *testing.T) {
	s := NewClientSession("")
	s.SetWant(map[WantClass]bool{WantBlocks: true})
	snap := s.Snapshot()
	if !snap.Want[WantBlocks] {
		t.Fatalf("Snapshot should carry the current want set")
	}
	s.SetWant(map[WantClass]bool{})
	if !snap.Want[WantBlocks] {
		t.Fatalf("mutating the session after Snapshot must not affect the already-taken snapshot")
	}
}
