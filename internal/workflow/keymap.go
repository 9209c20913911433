package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Binding ties one key to an action.
type Binding struct {
	Key         rune   `json:"-"`
	KeyName     string `json:"key"`
	Action      Action `json:"action"`
	Description string `json:"description"`
}

// DefaultBindings is the shortcut table. Keys are single letters and never
// overlap.
var DefaultBindings = []Binding{
	{Key: 'c', Action: ActionClaim, Description: "Claim and start"},
	{Key: 't', Action: ActionCopyTitle, Description: "Copy title"},
	{Key: 'd', Action: ActionCopyDescription, Description: "Copy description"},
	{Key: 'p', Action: ActionCopyPrice, Description: "Copy price"},
	{Key: 'm', Action: ActionCopyMedia, Description: "Copy photos"},
	{Key: 'r', Action: ActionReference, Description: "Enter listing URL"},
	{Key: 'v', Action: ActionDraft, Description: "Mark as marketplace draft"},
	{Key: 'u', Action: ActionPublish, Description: "Mark as published"},
	{Key: 'x', Action: ActionError, Description: "Mark as error"},
	{Key: 'n', Action: ActionNext, Description: "Next item"},
	{Key: 'g', Action: ActionRefresh, Description: "Refresh queue"},
}

func init() {
	for i := range DefaultBindings {
		DefaultBindings[i].KeyName = string(DefaultBindings[i].Key)
	}
}

// Command is a bound action.
type Command func(ctx context.Context) Notice

// Keymap is a command table attached to one controller. After Detach every
// key is inert.
type Keymap struct {
	mu       sync.RWMutex
	bindings []Binding
	commands map[rune]Command
}

// NewKeymap builds a keymap from bindings, rejecting duplicate keys.
func NewKeymap(bindings []Binding, commands map[Action]Command) (*Keymap, error) {
	k := &Keymap{commands: make(map[rune]Command, len(bindings))}
	for _, b := range bindings {
		if _, dup := k.commands[b.Key]; dup {
			return nil, fmt.Errorf("key %q bound twice", b.Key)
		}
		cmd, ok := commands[b.Action]
		if !ok {
			return nil, fmt.Errorf("no command for action %s", b.Action)
		}
		k.commands[b.Key] = cmd
		k.bindings = append(k.bindings, b)
	}
	return k, nil
}

// Bindings returns the table in display order.
func (k *Keymap) Bindings() []Binding {
	return append([]Binding(nil), k.bindings...)
}

// Dispatch runs the command bound to key. Keys are ignored while a text
// input has focus, when nothing is bound, or after Detach.
func (k *Keymap) Dispatch(ctx context.Context, key rune, inputFocused bool) (Notice, bool) {
	if k == nil || inputFocused {
		return Notice{}, false
	}
	k.mu.RLock()
	cmd, ok := k.commands[key]
	k.mu.RUnlock()
	if !ok {
		return Notice{}, false
	}
	return cmd(ctx), true
}

func (k *Keymap) detach() {
	k.mu.Lock()
	k.commands = nil
	k.mu.Unlock()
}

// Attach binds the default table to this controller. prompt reads the
// destination reference for the reference key; ok=false cancels. A
// previously attached keymap is detached first.
func (c *Controller) Attach(prompt func(ctx context.Context) (string, bool)) (*Keymap, error) {
	commands := map[Action]Command{
		ActionReference: func(ctx context.Context) Notice {
			if prompt == nil {
				return Notice{Level: LevelInfo, Message: "Type the listing URL into the reference field"}
			}
			ref, ok := prompt(ctx)
			if !ok {
				return Notice{Level: LevelInfo, Message: "Cancelled"}
			}
			return c.SetReference(ctx, ref)
		},
	}
	for _, b := range DefaultBindings {
		if b.Action == ActionReference {
			continue
		}
		action := b.Action
		commands[action] = func(ctx context.Context) Notice { return c.Do(ctx, action, "") }
	}

	k, err := NewKeymap(DefaultBindings, commands)
	if err != nil {
		return nil, fmt.Errorf("building keymap: %w", err)
	}

	c.mu.Lock()
	if c.keys != nil {
		c.keys.detach()
	}
	c.keys = k
	c.mu.Unlock()
	return k, nil
}

// Detach makes the attached keymap inert.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys != nil {
		c.keys.detach()
		c.keys = nil
	}
}
