// Package command provides the registry of structured and prefix
// commands: their names, parameter schemas, and bound handlers.
package command

import (
	"context"
	"fmt"

	"github.com/nugget/herald/internal/platform"
)

// ParamType enumerates the primitive parameter types a structured
// command may declare.
type ParamType string

// Parameter types.
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeUser    ParamType = "user"
	TypeRole    ParamType = "role"
	TypeChannel ParamType = "channel"
)

// Param declares one parameter of a structured command.
type Param struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
	// Choices restricts a string parameter to an enumerated set.
	Choices []string
	// Default is used when an optional parameter is omitted. Must be a
	// string for string-typed params and an int64 for integer params.
	Default any
}

// Responder delivers replies for one invocation or message.
type Responder interface {
	// Reply sends a public reply in the originating channel.
	Reply(ctx context.Context, content string) error
	// ReplyPrivate sends a reply visible only to the invoking user.
	ReplyPrivate(ctx context.Context, content string) error
	// Followup sends a deferred second message after the initial reply.
	Followup(ctx context.Context, content string) error
}

// Handler processes one structured command invocation. args holds the
// validated, typed, defaulted parameter values.
type Handler func(ctx context.Context, inv *platform.Invocation, args Args, r Responder) error

// PrefixHandler processes one prefix command. rest is the unparsed
// remainder of the line after the command word.
type PrefixHandler func(ctx context.Context, msg platform.Message, rest string, r Responder) error

// Spec declares a structured command.
type Spec struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// PrefixSpec declares a prefix command: a bare word following the
// marker character, with the rest of the line passed through raw.
type PrefixSpec struct {
	Word        string
	Description string
	Handler     PrefixHandler
}

// Registry holds the full command surface. Registration happens once at
// startup before dispatch begins, so lookups need no locking.
type Registry struct {
	commands map[string]*Spec
	order    []string
	prefixes map[string]*PrefixSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		commands: make(map[string]*Spec),
		prefixes: make(map[string]*PrefixSpec),
	}
}

// Register adds a structured command. Registering a name that is
// already present is an error; callers treat it as fatal at startup.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("register command: empty name")
	}
	if spec.Handler == nil {
		return fmt.Errorf("register command %q: nil handler", spec.Name)
	}
	if _, exists := r.commands[spec.Name]; exists {
		return fmt.Errorf("register command %q: name already registered", spec.Name)
	}

	s := spec
	r.commands[spec.Name] = &s
	r.order = append(r.order, spec.Name)
	return nil
}

// RegisterPrefix adds a prefix command, enforcing the same uniqueness
// contract as Register.
func (r *Registry) RegisterPrefix(spec PrefixSpec) error {
	if spec.Word == "" {
		return fmt.Errorf("register prefix command: empty word")
	}
	if spec.Handler == nil {
		return fmt.Errorf("register prefix command %q: nil handler", spec.Word)
	}
	if _, exists := r.prefixes[spec.Word]; exists {
		return fmt.Errorf("register prefix command %q: word already registered", spec.Word)
	}

	s := spec
	r.prefixes[spec.Word] = &s
	return nil
}

// Get returns the structured command with the given name.
func (r *Registry) Get(name string) (*Spec, bool) {
	s, ok := r.commands[name]
	return s, ok
}

// GetPrefix returns the prefix command bound to the given word.
func (r *Registry) GetPrefix(word string) (*PrefixSpec, bool) {
	s, ok := r.prefixes[word]
	return s, ok
}

// Len returns the number of registered structured commands.
func (r *Registry) Len() int {
	return len(r.commands)
}

// Specs returns the wire registration shapes for every structured
// command, in registration order. Used for the platform-side resync.
func (r *Registry) Specs() []platform.CommandSpec {
	specs := make([]platform.CommandSpec, 0, len(r.order))
	for _, name := range r.order {
		cmd := r.commands[name]
		spec := platform.CommandSpec{
			Name:        cmd.Name,
			Description: cmd.Description,
		}
		for _, p := range cmd.Params {
			spec.Params = append(spec.Params, platform.CommandParam{
				Name:        p.Name,
				Type:        string(p.Type),
				Description: p.Description,
				Required:    p.Required,
				Choices:     p.Choices,
			})
		}
		specs = append(specs, spec)
	}
	return specs
}
