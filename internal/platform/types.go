// Package platform defines the boundary to the chat platform: the data
// types shared with the gateway, the tagged event variants delivered by
// it, and a websocket client implementing the connection.
package platform

// User identifies an account on the platform.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Bot marks automated accounts. Bots are excluded from roulette
	// candidate sets and from question forwarding.
	Bot bool `json:"bot,omitempty"`
}

// Mention returns the platform mention syntax for the user.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

// Member is a user's membership within one community.
type Member struct {
	User User `json:"user"`
	// RoleIDs lists the community roles held by the member.
	RoleIDs []string `json:"role_ids,omitempty"`
	// VoiceChannelID is the voice channel the member currently occupies,
	// or empty when not in voice.
	VoiceChannelID string `json:"voice_channel_id,omitempty"`
	// Permissions are the member's effective community permissions.
	Permissions Permissions `json:"permissions"`
}

// HasRole reports whether the member holds the given role.
func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Permissions is the subset of community permissions Herald checks.
type Permissions struct {
	KickMembers bool `json:"kick_members,omitempty"`
	BanMembers  bool `json:"ban_members,omitempty"`
}

// Channel type designators.
const (
	ChannelText  = "text"
	ChannelVoice = "voice"
)

// Channel is a destination within a community.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	// Sendable reports whether the agent holds send permission here.
	Sendable bool `json:"sendable,omitempty"`
}

// Community is a distinct server/workspace the agent is connected to.
type Community struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Channels []Channel `json:"channels,omitempty"`
}

// Role is a named member grouping within a community.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a chat message delivered by the gateway or fetched from
// channel history.
type Message struct {
	ID            string `json:"id"`
	CommunityID   string `json:"community_id,omitempty"`
	CommunityName string `json:"community_name,omitempty"`
	ChannelID     string `json:"channel_id"`
	ChannelName   string `json:"channel_name,omitempty"`
	Author        User   `json:"author"`
	Content       string `json:"content"`
}

// Invocation is a structured command invocation delivered by the
// gateway. Option values arrive loosely typed (strings and JSON
// numbers); the dispatcher validates them against the registered
// parameter schema before the handler runs.
type Invocation struct {
	ID          string         `json:"id"`
	Command     string         `json:"command"`
	Options     map[string]any `json:"options,omitempty"`
	User        User           `json:"user"`
	Member      Member         `json:"member"`
	CommunityID string         `json:"community_id,omitempty"`
	ChannelID   string         `json:"channel_id"`
}

// File is an attachment to send with a message.
type File struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// CommandSpec is the wire shape for registering a structured command
// with the platform.
type CommandSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      []CommandParam `json:"params,omitempty"`
}

// CommandParam describes one parameter of a registered command.
type CommandParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, integer, user, role, channel
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Choices     []string `json:"choices,omitempty"`
}
