// Package assistant owns the active conversation of one process run.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"

	"github.com/archofall1/ai-ap/internal/codec"
	"github.com/archofall1/ai-ap/internal/models"
	"github.com/archofall1/ai-ap/internal/safety"
	"github.com/archofall1/ai-ap/internal/service/ai"
	"github.com/archofall1/ai-ap/internal/storage"

	"github.com/google/uuid"
)

// DrawPrefix routes the rest of the input to image generation.
const DrawPrefix = "/draw "

const imageFailurePrefix = "Image generation failed: "

var Greetings = []string{
	"Hello! How can I help you today?",
	"Hi there! Ask me anything, or send a picture.",
	"Welcome back! What are we working on?",
	"Hey! Type /draw followed by a description to get an image.",
}

var (
	ErrEmptyInput         = errors.New("input is empty")
	ErrImageNotConfigured = errors.New("image generation is not configured")
	errConversationClosed = errors.New("session changed while the reply was running")
)

// Options tunes a Conversation. Zero values fall back to defaults.
type Options struct {
	Cursor       string
	SystemPrompt string
	EnergyLimit  int
	Codec        codec.Options
	// PickGreeting returns an index into Greetings.
	PickGreeting func(n int) int
	NewID        func() string
}

// Input is one submission from the user.
type Input struct {
	Text  string
	Image []byte
	// OnAccepted sees the user message once it has been appended.
	OnAccepted func(models.Message)
}

// TurnResult describes a finished exchange.
type TurnResult struct {
	User    models.Message
	Reply   *models.Message
	Session models.Session
	Status  ai.Status
	Warning string
	// ImagesDropped is set when the energy quota sent an image request to the text model.
	ImagesDropped bool
	Refused       bool
}

// Snapshot is a copy of the active state.
type Snapshot struct {
	ID          string           `json:"id"`
	Messages    []models.Message `json:"messages"`
	Energy      int              `json:"energy"`
	EnergyLimit int              `json:"energy_limit"`
}

// Conversation is the explicit session context: the current id, its
// in-memory messages and the energy quota.
type Conversation struct {
	store  *storage.Store
	collab *ai.Collaborators
	gauge  *ai.EnergyGauge
	opts   Options

	mu       sync.Mutex
	active   bool
	id       string
	messages []models.Message
}

func NewConversation(store *storage.Store, collab *ai.Collaborators, opts Options) *Conversation {
	if opts.PickGreeting == nil {
		opts.PickGreeting = rand.IntN
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if collab == nil {
		collab = &ai.Collaborators{}
	}
	return &Conversation{
		store:  store,
		collab: collab,
		gauge:  ai.NewEnergyGauge(opts.EnergyLimit, collab),
		opts:   opts,
	}
}

// Init starts a session unless one is already active.
func (c *Conversation) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.newChatLocked()
}

// NewChat abandons the in-memory session for a fresh one. Stored sessions are kept.
func (c *Conversation) NewChat() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newChatLocked()
	return c.snapshotLocked()
}

// SwitchTo makes a stored session current. Unknown ids leave state untouched.
func (c *Conversation) SwitchTo(ctx context.Context, id string) (Snapshot, error) {
	session, err := c.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = session.ID
	c.messages = models.CloneMessages(session.Messages)
	c.active = true
	c.gauge.Reset()
	return c.snapshotLocked(), nil
}

// ClearAll deletes every stored session and starts a new chat.
func (c *Conversation) ClearAll(ctx context.Context) (Snapshot, error) {
	if err := c.store.DeleteAll(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("clear sessions: %w", err)
	}
	return c.NewChat(), nil
}

// Delete removes one stored session. Deleting the current one starts a new chat.
func (c *Conversation) Delete(ctx context.Context, id string) (Snapshot, error) {
	if err := c.store.Delete(ctx, id); err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == id {
		c.newChatLocked()
	}
	return c.snapshotLocked(), nil
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Sessions lists stored sessions, most recent first.
func (c *Conversation) Sessions(ctx context.Context) []models.SessionSummary {
	return c.store.List(ctx)
}

// Send runs one exchange and persists the session. Errors after the user
// message was appended are reported together with a populated result.
func (c *Conversation) Send(ctx context.Context, in Input, display ai.Display) (TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Image) == 0 {
		return TurnResult{}, ErrEmptyInput
	}
	if prompt, ok := drawPrompt(text); ok && len(in.Image) == 0 {
		if prompt == "" {
			return TurnResult{}, ErrEmptyInput
		}
		return c.draw(ctx, text, prompt, in.OnAccepted)
	}

	content, err := codec.Prepare(text, in.Image, c.opts.Codec)
	if err != nil {
		return TurnResult{}, err
	}
	user := models.Message{Role: models.RoleUser, Content: content}

	c.mu.Lock()
	if !c.active {
		c.newChatLocked()
	}
	if err := c.appendLocked(user); err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	route := c.gauge.Route(content)
	id := c.id
	history := models.CloneMessages(c.messages)
	c.mu.Unlock()

	if in.OnAccepted != nil {
		in.OnAccepted(user)
	}
	if route.DropImages {
		// earlier vision turns stay in history; a text model must not see them
		history = ai.TextOnlyMessages(history)
	}

	streamer := &ai.Streamer{
		Primary:      route.Primary,
		Fallback:     route.Fallback,
		Cursor:       c.opts.Cursor,
		SystemPrompt: c.opts.SystemPrompt,
	}
	res := streamer.Run(ctx, history, display)

	result := TurnResult{
		User:          user,
		Status:        res.Status,
		Warning:       res.Warning,
		ImagesDropped: route.DropImages && content.HasImage(),
	}
	// the buffer is committed even when empty so every user turn has a reply
	reply := &models.Message{Role: models.RoleAssistant, Content: models.Text(res.Text)}
	session, err := c.commit(ctx, id, reply)
	result.Reply = reply
	result.Session = session
	if res.Err != nil {
		return result, res.Err
	}
	return result, err
}

func (c *Conversation) draw(ctx context.Context, input, prompt string, onAccepted func(models.Message)) (TurnResult, error) {
	user := models.Message{Role: models.RoleUser, Content: models.Text(input)}

	c.mu.Lock()
	if !c.active {
		c.newChatLocked()
	}
	if err := c.appendLocked(user); err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	id := c.id
	c.mu.Unlock()

	if onAccepted != nil {
		onAccepted(user)
	}
	result := TurnResult{User: user, Status: ai.StatusOK}

	var (
		reply  models.Message
		genErr error
	)
	switch {
	case !safety.IsSafe(prompt):
		result.Refused = true
		reply = models.Message{Role: models.RoleAssistant, Content: models.Text(safety.Refusal)}
	case c.collab.Image == nil:
		genErr = ErrImageNotConfigured
	default:
		var data []byte
		data, genErr = c.collab.Image.Generate(ctx, prompt)
		if genErr == nil {
			reply = models.Message{Role: models.RoleAssistant, Content: models.Image(data, http.DetectContentType(data))}
		}
	}
	if genErr != nil {
		log.Printf("image generation failed: %v", genErr)
		result.Status = ai.StatusFailed
		reply = models.Message{Role: models.RoleAssistant, Content: models.Text(imageFailurePrefix + genErr.Error())}
	}

	session, err := c.commit(ctx, id, &reply)
	result.Reply = &reply
	result.Session = session
	if genErr != nil {
		return result, genErr
	}
	return result, err
}

// drawPrompt reports whether text asks for an image and returns the prompt.
func drawPrompt(text string) (string, bool) {
	if text == strings.TrimSpace(DrawPrefix) {
		return "", true
	}
	if !strings.HasPrefix(text, DrawPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(text, DrawPrefix)), true
}

// commit appends the reply if the session is still current and saves it.
func (c *Conversation) commit(ctx context.Context, id string, reply *models.Message) (models.Session, error) {
	c.mu.Lock()
	if c.id != id {
		c.mu.Unlock()
		return models.Session{}, errConversationClosed
	}
	if reply != nil {
		if err := c.appendLocked(*reply); err != nil {
			c.mu.Unlock()
			return models.Session{}, err
		}
	}
	messages := models.CloneMessages(c.messages)
	c.mu.Unlock()

	session, err := c.store.Save(ctx, id, messages)
	if err != nil {
		return models.Session{}, fmt.Errorf("save session %s: %w", id, err)
	}
	return session, nil
}

func (c *Conversation) appendLocked(msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *Conversation) newChatLocked() {
	greeting := Greetings[c.opts.PickGreeting(len(Greetings))%len(Greetings)]
	c.id = c.opts.NewID()
	c.messages = []models.Message{{Role: models.RoleAssistant, Content: models.Text(greeting)}}
	c.active = true
	c.gauge.Reset()
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          c.id,
		Messages:    models.CloneMessages(c.messages),
		Energy:      c.gauge.Remaining(),
		EnergyLimit: c.gauge.Limit(),
	}
}
