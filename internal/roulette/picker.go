// Package roulette selects a random member from one of several
// candidate pools: the invoker's voice channel, the whole community
// roster, holders of a role, or recent authors in a text channel.
package roulette

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/nugget/herald/internal/platform"
)

// Sentinel errors callers can test with errors.Is.
var (
	// ErrNoCandidates means the requested pool contained nobody
	// eligible after filtering bots.
	ErrNoCandidates = errors.New("no eligible members")
	// ErrNotInVoice means the invoker asked for a voice pool while not
	// connected to a voice channel.
	ErrNotInVoice = errors.New("not in a voice channel")
)

// Roster lists the members of a community.
type Roster interface {
	Members(ctx context.Context, communityID string) ([]platform.Member, error)
}

// History lists recent messages of a text channel, newest first.
type History interface {
	Messages(ctx context.Context, channelID string, limit int) ([]platform.Message, error)
}

// Picker draws a uniformly random member from a candidate pool. The
// random source is injected so selections are reproducible in tests.
type Picker struct {
	roster       Roster
	history      History
	historyLimit int
	rng          *rand.Rand
}

// NewPicker creates a picker. historyLimit caps how many recent
// messages the text pool examines. rng must not be shared with
// concurrent users; the dispatch loop calls the picker serially.
func NewPicker(roster Roster, history History, historyLimit int, rng *rand.Rand) *Picker {
	return &Picker{
		roster:       roster,
		history:      history,
		historyLimit: historyLimit,
		rng:          rng,
	}
}

// PickVoice selects among the members sharing the invoker's voice
// channel, the invoker included.
func (p *Picker) PickVoice(ctx context.Context, communityID string, invoker platform.Member) (platform.User, error) {
	if invoker.VoiceChannelID == "" {
		return platform.User{}, ErrNotInVoice
	}

	members, err := p.roster.Members(ctx, communityID)
	if err != nil {
		return platform.User{}, fmt.Errorf("list members: %w", err)
	}

	var pool []platform.User
	for _, m := range members {
		if m.User.Bot || m.VoiceChannelID != invoker.VoiceChannelID {
			continue
		}
		pool = append(pool, m.User)
	}
	return p.pick(pool, "voice channel")
}

// PickRoster selects among every non-bot member of the community.
func (p *Picker) PickRoster(ctx context.Context, communityID string) (platform.User, error) {
	members, err := p.roster.Members(ctx, communityID)
	if err != nil {
		return platform.User{}, fmt.Errorf("list members: %w", err)
	}

	var pool []platform.User
	for _, m := range members {
		if m.User.Bot {
			continue
		}
		pool = append(pool, m.User)
	}
	return p.pick(pool, "community")
}

// PickRole selects among the non-bot members holding the given role.
func (p *Picker) PickRole(ctx context.Context, communityID, roleID string) (platform.User, error) {
	members, err := p.roster.Members(ctx, communityID)
	if err != nil {
		return platform.User{}, fmt.Errorf("list members: %w", err)
	}

	var pool []platform.User
	for _, m := range members {
		if m.User.Bot || !m.HasRole(roleID) {
			continue
		}
		pool = append(pool, m.User)
	}
	return p.pick(pool, "role")
}

// PickText selects among the distinct non-bot authors of the channel's
// recent messages.
func (p *Picker) PickText(ctx context.Context, channelID string) (platform.User, error) {
	messages, err := p.history.Messages(ctx, channelID, p.historyLimit)
	if err != nil {
		return platform.User{}, fmt.Errorf("list messages: %w", err)
	}

	seen := make(map[string]bool)
	var pool []platform.User
	for _, msg := range messages {
		if msg.Author.Bot || seen[msg.Author.ID] {
			continue
		}
		seen[msg.Author.ID] = true
		pool = append(pool, msg.Author)
	}
	return p.pick(pool, "channel history")
}

// pick draws uniformly from the pool.
func (p *Picker) pick(pool []platform.User, poolName string) (platform.User, error) {
	if len(pool) == 0 {
		return platform.User{}, fmt.Errorf("%s: %w", poolName, ErrNoCandidates)
	}
	return pool[p.rng.IntN(len(pool))], nil
}
