package node

import (
	"testing"
	"time"
)

func TestPressSequence(t *testing.T) {
	s := New(nil)
	steps := []struct {
		press func() Mode
		want  Mode
	}{
		{s.ShortPress, Music},
		{s.LongPress, MusicLeader},
		{s.ShortPress, NormalLeader},
		{s.LongPress, Normal},
		{s.LongPress, NormalLeader},
		{s.LongPress, Normal},
		{s.ShortPress, Music},
		{s.ShortPress, Normal},
	}
	for i, st := range steps {
		if got := st.press(); got != st.want {
			t.Fatalf("step %d: got %v, want %v", i, got, st.want)
		}
		if s.Following() {
			t.Fatalf("step %d: following set without traffic", i)
		}
	}
}

func TestShortPressKeepsFollowing(t *testing.T) {
	s := New(nil)
	now := time.Unix(100, 0)
	s.OnFragment(now)
	s.ShortPress()
	if !s.Following() || s.Mode() != Music {
		t.Fatalf("after short press: mode=%v following=%v, want music/true", s.Mode(), s.Following())
	}
	s.ShortPress()
	if !s.Following() || s.Mode() != Normal {
		t.Fatalf("after second short press: mode=%v following=%v, want normal/true", s.Mode(), s.Following())
	}
}

func TestLeaderNeverFollows(t *testing.T) {
	s := New(nil)
	now := time.Unix(100, 0)
	s.OnFragment(now)
	s.LongPress()
	if s.Following() {
		t.Fatal("leader still following")
	}
	if s.OnFragment(now.Add(time.Second)) {
		t.Fatal("leader accepted a fragment")
	}
	if s.Following() {
		t.Fatal("leader started following")
	}
}

func TestLeaderTimeout(t *testing.T) {
	s := New(nil)
	t0 := time.Unix(100, 0)
	if !s.OnFragment(t0) {
		t.Fatal("standalone node rejected fragment")
	}
	if s.CheckTimeout(t0.Add(LeaderTimeout - time.Millisecond)) {
		t.Fatal("timed out early")
	}
	if !s.Following() {
		t.Fatal("following cleared early")
	}
	if !s.CheckTimeout(t0.Add(LeaderTimeout)) {
		t.Fatal("timeout not reported")
	}
	if s.Following() {
		t.Fatal("following still set after timeout")
	}
	if s.CheckTimeout(t0.Add(2 * LeaderTimeout)) {
		t.Fatal("timeout reported twice")
	}
}

func TestFragmentRefreshesTimeout(t *testing.T) {
	s := New(nil)
	t0 := time.Unix(100, 0)
	s.OnFragment(t0)
	s.OnFragment(t0.Add(5 * time.Second))
	if s.CheckTimeout(t0.Add(LeaderTimeout + time.Second)) {
		t.Fatal("timed out despite a recent fragment")
	}
	if got := s.LastLeaderMessage(); !got.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("last leader message = %v, want %v", got, t0.Add(5*time.Second))
	}
}

func TestFragmentResetsRejoin(t *testing.T) {
	s := New(nil)
	s.rejoin.Attempts = 4
	s.rejoin.ScanInterval = time.Minute
	s.OnFragment(time.Unix(1, 0))
	r := s.Rejoin()
	if r.Attempts != 0 || r.ScanInterval != RejoinScanInterval {
		t.Fatalf("rejoin = %+v, want reset", r)
	}
}

func TestModeAxes(t *testing.T) {
	tests := []struct {
		m             Mode
		music, leader bool
		name          string
	}{
		{Normal, false, false, "normal"},
		{Music, true, false, "music"},
		{NormalLeader, false, true, "normal-leader"},
		{MusicLeader, true, true, "music-leader"},
	}
	for _, tt := range tests {
		if tt.m.IsMusic() != tt.music || tt.m.IsLeader() != tt.leader {
			t.Errorf("%v: music=%v leader=%v", tt.m, tt.m.IsMusic(), tt.m.IsLeader())
		}
		if compose(tt.music, tt.leader) != tt.m {
			t.Errorf("compose(%v,%v) = %v, want %v", tt.music, tt.leader, compose(tt.music, tt.leader), tt.m)
		}
		if tt.m.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.m.String(), tt.name)
		}
	}
}
