package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/archofall1/ai-ap/internal/models"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// ChatsKey is the single key holding every stored session.
	ChatsKey = "chats"

	DefaultTitle  = "New Chat"
	titleMaxRunes = 30
	dateLayout    = "2006-01-02 15:04"
	titleEllipsis = "..."
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions maps session id to session in insertion order.
type Sessions = orderedmap.OrderedMap[string, models.Session]

// Store persists every session as one JSON value. Each write replaces the
// whole value; concurrent writers lose updates.
type Store struct {
	kv  KV
	now func() time.Time
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// LoadAll returns every stored session. Read and decode failures are logged
// and yield an empty mapping.
func (s *Store) LoadAll(ctx context.Context) *Sessions {
	sessions, err := s.load(ctx)
	if err != nil {
		log.Printf("load sessions: %v", err)
		return orderedmap.New[string, models.Session]()
	}
	return sessions
}

// Save replaces the messages of id, refreshing its title and date, and
// writes the whole mapping back. A new id is appended at the end.
func (s *Store) Save(ctx context.Context, id string, messages []models.Message) (models.Session, error) {
	if id == "" {
		return models.Session{}, errors.New("session id required")
	}
	sessions, err := s.load(ctx)
	if err != nil {
		return models.Session{}, err
	}
	session := models.Session{
		ID:       id,
		Messages: models.CloneMessages(messages),
		Title:    DeriveTitle(messages),
		Date:     s.now().Local().Format(dateLayout),
	}
	sessions.Set(id, session)
	if err := s.write(ctx, sessions); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// Get returns one stored session.
func (s *Store) Get(ctx context.Context, id string) (models.Session, error) {
	sessions := s.LoadAll(ctx)
	session, ok := sessions.Get(id)
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Delete removes one stored session.
func (s *Store) Delete(ctx context.Context, id string) error {
	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, present := sessions.Delete(id); !present {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.write(ctx, sessions)
}

// DeleteAll drops the stored mapping; the next load sees it empty.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.kv.Delete(ctx, ChatsKey); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

// List returns the sidebar entries, most recently created first.
func (s *Store) List(ctx context.Context) []models.SessionSummary {
	sessions := s.LoadAll(ctx)
	out := make([]models.SessionSummary, 0, sessions.Len())
	for pair := sessions.Newest(); pair != nil; pair = pair.Prev() {
		out = append(out, pair.Value.Summary())
	}
	return out
}

// DeriveTitle is the first user-authored text, cut to 30 runes.
func DeriveTitle(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.Content.PlainText())
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + titleEllipsis
		}
		return text
	}
	return DefaultTitle
}

// load reads the mapping. A missing key or an undecodable value is an empty
// mapping; only backend failures are returned.
func (s *Store) load(ctx context.Context) (*Sessions, error) {
	sessions := orderedmap.New[string, models.Session]()
	raw, err := s.kv.Get(ctx, ChatsKey)
	if errors.Is(err, ErrKeyNotFound) {
		return sessions, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ChatsKey, err)
	}
	if err := json.Unmarshal(raw, sessions); err != nil {
		log.Printf("discarding undecodable %s value: %v", ChatsKey, err)
		return orderedmap.New[string, models.Session](), nil
	}
	for pair := sessions.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.ID = pair.Key
	}
	return sessions, nil
}

func (s *Store) write(ctx context.Context, sessions *Sessions) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.kv.Put(ctx, ChatsKey, raw); err != nil {
		return fmt.Errorf("write %s: %w", ChatsKey, err)
	}
	return nil
}
