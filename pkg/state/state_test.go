package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasmlab/tolk/pkg/bot"
	"github.com/dasmlab/tolk/pkg/language"
)

var testConv = bot.Conversation{ID: "conv-1", UserID: "user-1"}

func TestUserLanguageUnsetByDefault(t *testing.T) {
	pref := NewUserLanguage(NewMemoryStorage(time.Hour))

	code, ok, err := pref.Language(context.Background(), testConv)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, language.Code(""), code)
}

func TestUserLanguageSetOverwrites(t *testing.T) {
	ctx := context.Background()
	pref := NewUserLanguage(NewMemoryStorage(time.Hour))

	require.NoError(t, pref.SetLanguage(ctx, testConv, "fr"))
	require.NoError(t, pref.SetLanguage(ctx, testConv, "fr"))
	code, ok, err := pref.Language(ctx, testConv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, language.Code("fr"), code)

	require.NoError(t, pref.SetLanguage(ctx, testConv, "de"))
	code, _, _ = pref.Language(ctx, testConv)
	assert.Equal(t, language.Code("de"), code)

	other := bot.Conversation{ID: "conv-1", UserID: "user-2"}
	_, ok, err = pref.Language(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStorage struct{ err error }

func (f failingStorage) Get(ctx context.Context, key, field string) (string, bool, error) {
	return "", false, f.err
}

func (f failingStorage) Set(ctx context.Context, key, field, value string) error {
	return f.err
}

func TestUserLanguageWrapsStorageErrors(t *testing.T) {
	boom := errors.New("storage down")
	pref := NewUserLanguage(failingStorage{err: boom})

	_, _, err := pref.Language(context.Background(), testConv)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, pref.SetLanguage(context.Background(), testConv, "fr"), boom)
}

func TestMemoryStorageExpiresSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStorage(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "user-1", FieldTranslateTo, "fr"))
	value, ok, err := s.Get(ctx, "user-1", FieldTranslateTo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fr", value)

	now = now.Add(2 * time.Minute)
	_, ok, err = s.Get(ctx, "user-1", FieldTranslateTo)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStorageRejectsEmptyKey(t *testing.T) {
	s := NewMemoryStorage(0)
	_, _, err := s.Get(context.Background(), "", FieldTranslateTo)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, s.Set(context.Background(), "", FieldTranslateTo, "fr"), ErrEmptyKey)
}

func newRedisStorage(t *testing.T, ttl time.Duration) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStorage(rdb, ttl), mr
}

func TestRedisStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStorage(t, time.Hour)

	_, ok, err := s.Get(ctx, "user-1", FieldTranslateTo)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "user-1", FieldTranslateTo, "ja"))
	value, ok, err := s.Get(ctx, "user-1", FieldTranslateTo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ja", value)

	assert.Equal(t, "ja", mr.HGet("tolk:user:user-1", FieldTranslateTo))
	assert.Equal(t, time.Hour, mr.TTL("tolk:user:user-1"))
}

func TestRedisStorageExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStorage(t, time.Minute)

	require.NoError(t, s.Set(ctx, "user-1", FieldTranslateTo, "es"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "user-1", FieldTranslateTo)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackedUserLanguage(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStorage(t, time.Hour)
	pref := NewUserLanguage(s)

	require.NoError(t, pref.SetLanguage(ctx, testConv, "sv"))
	code, ok, err := pref.Language(ctx, testConv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, language.Code("sv"), code)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	_, err = Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}
