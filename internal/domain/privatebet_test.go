package domain_test

import (
	"testing"

	"github.com/predictru/backend/internal/domain"
)

// ── Majority math ─────────────────────────────────────────────────────────────

func TestPrivateBet_MajorityThreshold(t *testing.T) {
	cases := []struct {
		yes, no int
		want    int
	}{
		{1, 1, 2}, // 2 participants → need both
		{2, 1, 2}, // 3 participants → need 2
		{2, 2, 3}, // 4 participants → need 3
		{3, 2, 3}, // 5 participants → need 3
	}
	for _, tc := range cases {
		b := &domain.PrivateBet{YesCount: tc.yes, NoCount: tc.no}
		if got := b.MajorityThreshold(); got != tc.want {
			t.Errorf("threshold for %d participants = %d, want %d",
				tc.yes+tc.no, got, tc.want)
		}
	}
}

func TestPrivateBet_HasMajority(t *testing.T) {
	b := &domain.PrivateBet{YesCount: 2, NoCount: 1} // threshold 2
	b.YesVotes = 1
	if b.HasMajority() {
		t.Error("one vote of three should not be a majority")
	}
	b.YesVotes = 2
	if !b.HasMajority() {
		t.Error("two votes of three should be a majority")
	}
}

// TestPrivateBet_VoteWinner_Tie covers the two-participant deadlock: each
// votes for their own side, counts land 1–1, and the bet must cancel rather
// than resolve.
func TestPrivateBet_VoteWinner_Tie(t *testing.T) {
	b := &domain.PrivateBet{YesCount: 1, NoCount: 1, YesVotes: 1, NoVotes: 1}
	if _, ok := b.VoteWinner(); ok {
		t.Error("tied votes should have no winner")
	}

	b.NoVotes = 0
	winner, ok := b.VoteWinner()
	if !ok || winner != domain.OutcomeYes {
		t.Errorf("VoteWinner() = (%s, %v), want (yes, true)", winner, ok)
	}
}

func TestPrivateBet_IsOneSided(t *testing.T) {
	b := &domain.PrivateBet{YesCount: 3, NoCount: 0}
	if !b.IsOneSided() {
		t.Error("bet with no NO side should be one-sided")
	}
	b.NoCount = 1
	if b.IsOneSided() {
		t.Error("bet with both sides should not be one-sided")
	}
}
