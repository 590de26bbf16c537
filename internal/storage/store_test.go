package storage

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/archofall1/ai-ap/internal/config"
	"github.com/archofall1/ai-ap/internal/models"
	"github.com/archofall1/ai-ap/internal/redis"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	kv, err := OpenKV("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	store := NewStore(kv)
	store.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local) }
	t.Cleanup(func() { store.Close() })
	return store
}

func conversation(user string) []models.Message {
	return []models.Message{
		{Role: models.RoleAssistant, Content: models.Text("hi there")},
		{Role: models.RoleUser, Content: models.Text(user)},
		{Role: models.RoleAssistant, Content: models.Text("sure")},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	msgs := conversation("tell me a joke")
	msgs = append(msgs,
		models.Message{Role: models.RoleUser, Content: models.Parts(models.ImagePart("data:image/jpeg;base64,AAAA"), models.TextPart("and this?"))},
		models.Message{Role: models.RoleAssistant, Content: models.Image([]byte{0x89, 'P', 'N', 'G'}, "image/png")},
	)
	if _, err := store.Save(ctx, "a", msgs); err != nil {
		t.Fatalf("save: %v", err)
	}

	all := store.LoadAll(ctx)
	got, ok := all.Get("a")
	if !ok {
		t.Fatalf("expected session a")
	}
	if got.ID != "a" {
		t.Fatalf("expected id restored from key, got %q", got.ID)
	}
	if got.Title != DeriveTitle(msgs) || got.Title != "tell me a joke" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.Date != "2024-05-01 09:30" {
		t.Fatalf("unexpected date %q", got.Date)
	}
	if len(got.Messages) != len(msgs) {
		t.Fatalf("message count mismatch: want %d got %d", len(msgs), len(got.Messages))
	}
	if parts := got.Messages[3].Content.PartList(); len(parts) != 2 || parts[0].Kind != models.PartImage {
		t.Fatalf("parts not preserved: %+v", parts)
	}
	data, mediaType := got.Messages[4].Content.ImageData()
	if string(data) != "\x89PNG" || mediaType != "image/png" {
		t.Fatalf("image not preserved: %q %s", data, mediaType)
	}
}

func TestStoreListNewestFirstAndUpsertKeepsPosition(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	for _, id := range []string{"first", "second", "third"} {
		if _, err := store.Save(ctx, id, conversation(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if _, err := store.Save(ctx, "first", conversation("first again")); err != nil {
		t.Fatalf("resave: %v", err)
	}

	list := store.List(ctx)
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "third,second,first" {
		t.Fatalf("unexpected order %v", ids)
	}
	if list[2].Title != "first again" {
		t.Fatalf("upsert did not replace content: %q", list[2].Title)
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	store.Save(ctx, "keep", conversation("keep"))
	store.Save(ctx, "drop", conversation("drop"))

	if err := store.Delete(ctx, "drop"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "drop"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "drop"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
	if _, err := store.Get(ctx, "keep"); err != nil {
		t.Fatalf("keep should survive: %v", err)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n := store.LoadAll(ctx).Len(); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestStoreLoadFailsSoft(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := NewStore(kv)

	if n := store.LoadAll(ctx).Len(); n != 0 {
		t.Fatalf("expected empty mapping for absent key, got %d", n)
	}

	kv.Put(ctx, ChatsKey, []byte("{not json"))
	if n := store.LoadAll(ctx).Len(); n != 0 {
		t.Fatalf("expected empty mapping for corrupt value, got %d", n)
	}
	if len(store.List(ctx)) != 0 {
		t.Fatalf("expected empty list")
	}

	// a save over a corrupt value starts a fresh mapping
	if _, err := store.Save(ctx, "x", conversation("fresh")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if n := store.LoadAll(ctx).Len(); n != 1 {
		t.Fatalf("expected one session, got %d", n)
	}
}

func TestStoreReadsLegacyStringContent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	kv.Put(ctx, ChatsKey, []byte(`{"old":{"messages":[{"role":"user","content":"plain"}],"title":"plain","date":"2023-01-01 10:00"}}`))
	store := NewStore(kv)

	session, err := store.Get(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.Messages[0].Content.Text() != "plain" {
		t.Fatalf("legacy content not decoded: %+v", session.Messages[0])
	}
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("é", 31)
	cases := []struct {
		name string
		msgs []models.Message
		want string
	}{
		{"no user text", []models.Message{{Role: models.RoleAssistant, Content: models.Text("hello")}}, DefaultTitle},
		{"empty", nil, DefaultTitle},
		{"short", conversation("hello world"), "hello world"},
		{"exactly thirty", conversation(strings.Repeat("a", 30)), strings.Repeat("a", 30)},
		{"long runes", conversation(long), strings.Repeat("é", 30) + "..."},
		{"image only then text", []models.Message{
			{Role: models.RoleUser, Content: models.Parts(models.ImagePart("data:image/jpeg;base64,AA"))},
			{Role: models.RoleUser, Content: models.Parts(models.ImagePart("data:image/jpeg;base64,AA"), models.TextPart("caption"))},
		}, "caption"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveTitle(tc.msgs)
			if got != tc.want {
				t.Fatalf("want %q got %q", tc.want, got)
			}
			if again := DeriveTitle(tc.msgs); again != got {
				t.Fatalf("title not stable: %q vs %q", got, again)
			}
		})
	}
}

func TestRedisKV(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed store tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx := context.Background()
	t.Cleanup(func() {
		client.Del(ctx, ChatsKey)
		client.Close()
	})
	client.Del(ctx, ChatsKey)

	store := NewStore(NewRedisKV(client))
	if _, err := store.Save(ctx, "r1", conversation("from redis")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "from redis" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := client.Get(ctx, ChatsKey); !errors.Is(err, redis.ErrCacheMiss) {
		t.Fatalf("expected the chats key removed, got %v", err)
	}
}

func TestOpenKVCreatesSQLiteDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg := config.Default()
	kv, err := OpenKV(cfg.BasicConfig.StoreKind, cfg)
	if err != nil {
		t.Fatalf("open default store on first run: %v", err)
	}
	defer kv.Close()

	store := NewStore(kv)
	if _, err := store.Save(context.Background(), "a", conversation("first run")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultSQLiteDSN)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestStoreDeleteAllThenSave(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all on empty store: %v", err)
	}
	store.Save(ctx, "a", conversation("one"))
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := store.Save(ctx, "b", conversation("two")); err != nil {
		t.Fatalf("save after clear: %v", err)
	}
	list := store.List(ctx)
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("unexpected list after clear %+v", list)
	}
}
