package roulette

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/nugget/herald/internal/platform"
)

type fakeRoster struct {
	members []platform.Member
	err     error
}

func (f *fakeRoster) Members(ctx context.Context, communityID string) ([]platform.Member, error) {
	return f.members, f.err
}

type fakeHistory struct {
	messages []platform.Message
	err      error
	gotLimit int
}

func (f *fakeHistory) Messages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	f.gotLimit = limit
	return f.messages, f.err
}

func member(id, name string, bot bool, voiceChannel string, roles ...string) platform.Member {
	return platform.Member{
		User:           platform.User{ID: id, Name: name, Bot: bot},
		RoleIDs:        roles,
		VoiceChannelID: voiceChannel,
	}
}

func newTestPicker(roster Roster, history History) *Picker {
	return NewPicker(roster, history, 1000, rand.New(rand.NewPCG(1, 2)))
}

func TestPickVoice(t *testing.T) {
	roster := &fakeRoster{members: []platform.Member{
		member("u1", "alice", false, "vc1"),
		member("u2", "bob", false, "vc1"),
		member("u3", "carol", false, "vc2"),
		member("u4", "botto", true, "vc1"),
		member("u5", "dave", false, ""),
	}}
	p := newTestPicker(roster, &fakeHistory{})

	invoker := member("u1", "alice", false, "vc1")
	got, err := p.PickVoice(context.Background(), "g1", invoker)
	if err != nil {
		t.Fatalf("PickVoice() error = %v", err)
	}
	if got.ID != "u1" && got.ID != "u2" {
		t.Errorf("PickVoice() chose %q, want a member of vc1", got.ID)
	}
}

func TestPickVoiceNotConnected(t *testing.T) {
	p := newTestPicker(&fakeRoster{}, &fakeHistory{})

	invoker := member("u1", "alice", false, "")
	_, err := p.PickVoice(context.Background(), "g1", invoker)
	if !errors.Is(err, ErrNotInVoice) {
		t.Errorf("PickVoice() error = %v, want ErrNotInVoice", err)
	}
}

func TestPickVoiceOnlyBots(t *testing.T) {
	roster := &fakeRoster{members: []platform.Member{
		member("u4", "botto", true, "vc1"),
	}}
	p := newTestPicker(roster, &fakeHistory{})

	invoker := member("u1", "alice", false, "vc1")
	_, err := p.PickVoice(context.Background(), "g1", invoker)
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("PickVoice() error = %v, want ErrNoCandidates", err)
	}
}

func TestPickRoster(t *testing.T) {
	roster := &fakeRoster{members: []platform.Member{
		member("u1", "alice", false, ""),
		member("u2", "botto", true, ""),
	}}
	p := newTestPicker(roster, &fakeHistory{})

	got, err := p.PickRoster(context.Background(), "g1")
	if err != nil {
		t.Fatalf("PickRoster() error = %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("PickRoster() chose %q, want u1 (the only non-bot)", got.ID)
	}
}

func TestPickRosterEmpty(t *testing.T) {
	p := newTestPicker(&fakeRoster{}, &fakeHistory{})

	_, err := p.PickRoster(context.Background(), "g1")
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("PickRoster() error = %v, want ErrNoCandidates", err)
	}
}

func TestPickRosterListError(t *testing.T) {
	roster := &fakeRoster{err: errors.New("gateway down")}
	p := newTestPicker(roster, &fakeHistory{})

	_, err := p.PickRoster(context.Background(), "g1")
	if err == nil || errors.Is(err, ErrNoCandidates) {
		t.Errorf("PickRoster() error = %v, want the transport error", err)
	}
}

func TestPickRole(t *testing.T) {
	roster := &fakeRoster{members: []platform.Member{
		member("u1", "alice", false, "", "r1"),
		member("u2", "bob", false, "", "r2"),
		member("u3", "botto", true, "", "r1"),
	}}
	p := newTestPicker(roster, &fakeHistory{})

	got, err := p.PickRole(context.Background(), "g1", "r1")
	if err != nil {
		t.Fatalf("PickRole() error = %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("PickRole() chose %q, want u1", got.ID)
	}

	_, err = p.PickRole(context.Background(), "g1", "r9")
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("PickRole() for unheld role: error = %v, want ErrNoCandidates", err)
	}
}

func TestPickTextDedupesAuthors(t *testing.T) {
	alice := platform.User{ID: "u1", Name: "alice"}
	bot := platform.User{ID: "u9", Name: "botto", Bot: true}
	history := &fakeHistory{messages: []platform.Message{
		{ID: "m1", Author: alice},
		{ID: "m2", Author: alice},
		{ID: "m3", Author: bot},
	}}
	p := newTestPicker(&fakeRoster{}, history)

	got, err := p.PickText(context.Background(), "c1")
	if err != nil {
		t.Fatalf("PickText() error = %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("PickText() chose %q, want u1", got.ID)
	}
	if history.gotLimit != 1000 {
		t.Errorf("PickText() requested %d messages, want 1000", history.gotLimit)
	}
}

func TestPickTextEmptyChannel(t *testing.T) {
	p := newTestPicker(&fakeRoster{}, &fakeHistory{})

	_, err := p.PickText(context.Background(), "c1")
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("PickText() error = %v, want ErrNoCandidates", err)
	}
}

func TestPickUniformity(t *testing.T) {
	const candidates = 4
	const trials = 20000

	var members []platform.Member
	for i := range candidates {
		id := fmt.Sprintf("u%d", i)
		members = append(members, member(id, id, false, ""))
	}
	p := newTestPicker(&fakeRoster{members: members}, &fakeHistory{})

	counts := make(map[string]int)
	for range trials {
		got, err := p.PickRoster(context.Background(), "g1")
		if err != nil {
			t.Fatal(err)
		}
		counts[got.ID]++
	}

	// Each candidate should land near trials/candidates. A 10% band is
	// far looser than the expected sampling error at this trial count,
	// so the test is deterministic for the seeded generator.
	expected := trials / candidates
	tolerance := expected / 10
	for id, n := range counts {
		if n < expected-tolerance || n > expected+tolerance {
			t.Errorf("candidate %s selected %d times, want %d±%d", id, n, expected, tolerance)
		}
	}
	if len(counts) != candidates {
		t.Errorf("only %d of %d candidates were ever selected", len(counts), candidates)
	}
}
