package remote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/remote"
	"github.com/inkwellapp/inkwell-client/internal/remote/remotetest"
)

func newTestClient(t *testing.T) (*remote.Client, *remotetest.Server) {
	t.Helper()
	srv := remotetest.New()
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.New(srv.URL(), remote.StaticToken("test-token"), logger)
	client.SetRate(1000, 1000)
	return client, srv
}

func TestListBooks(t *testing.T) {
	client, srv := newTestClient(t)

	srv.SeedBook(remote.BookMeta{
		UniqueID:  "abc123",
		Title:     "The Trial",
		Author:    "Franz Kafka",
		UpdatedAt: 1700000000000,
	}, nil)

	summaries, err := client.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "abc123", summaries[0].UniqueID)
	assert.Equal(t, int64(1700000000000), summaries[0].UpdatedAt)
}

func TestSyncBookMeta(t *testing.T) {
	client, srv := newTestClient(t)

	t.Run("local wins", func(t *testing.T) {
		srv.SeedBook(remote.BookMeta{UniqueID: "b1", UpdatedAt: 100}, nil)

		got, err := client.SyncBookMeta(context.Background(), remote.BookMeta{
			UniqueID:  "b1",
			CurrChars: 500,
			UpdatedAt: 200,
		})
		require.NoError(t, err)
		assert.Nil(t, got)

		stored, ok := srv.Book("b1")
		require.True(t, ok)
		assert.Equal(t, 500, stored.CurrChars)
	})

	t.Run("remote wins", func(t *testing.T) {
		srv.SeedBook(remote.BookMeta{UniqueID: "b2", CurrChars: 900, UpdatedAt: 300}, nil)

		got, err := client.SyncBookMeta(context.Background(), remote.BookMeta{
			UniqueID:  "b2",
			UpdatedAt: 100,
		})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 900, got.CurrChars)
	})
}

func TestUploadAndFetchPayload(t *testing.T) {
	client, srv := newTestClient(t)

	payload := []byte("compressed payload bytes")
	var lastSent, lastTotal int64

	url, err := client.UploadPayload(context.Background(), "book-1", payload, func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, payload, srv.Payload("book-1"))
	assert.Equal(t, lastTotal, lastSent)
	assert.Greater(t, lastTotal, int64(len(payload)))

	fetched, err := client.FetchPayload(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)
}

func TestCreateSessionsPartialAck(t *testing.T) {
	client, srv := newTestClient(t)

	srv.FailNextSessions(2)

	acks, err := client.CreateSessions(context.Background(), []remote.SessionRecord{
		{Snowflake: 1, BookID: "b1"},
		{Snowflake: 2, BookID: "b1"},
		{Snowflake: 3, BookID: "b2"},
	})
	require.NoError(t, err)
	require.Len(t, acks, 2)
	assert.True(t, srv.HasSession(1))
	assert.False(t, srv.HasSession(2))
	assert.True(t, srv.HasSession(3))

	// Retrying the full batch dedups the already accepted sessions.
	acks, err = client.CreateSessions(context.Background(), []remote.SessionRecord{
		{Snowflake: 1, BookID: "b1"},
		{Snowflake: 2, BookID: "b1"},
		{Snowflake: 3, BookID: "b2"},
	})
	require.NoError(t, err)
	require.Len(t, acks, 3)
	statuses := map[int64]string{}
	for _, ack := range acks {
		statuses[ack.Snowflake] = ack.Status
	}
	assert.Equal(t, remote.SessionDuplicate, statuses[1])
	assert.Equal(t, remote.SessionCreated, statuses[2])
	assert.Equal(t, remote.SessionDuplicate, statuses[3])
}

func TestDeleteSession(t *testing.T) {
	client, srv := newTestClient(t)

	_, err := client.CreateSessions(context.Background(), []remote.SessionRecord{
		{Snowflake: 7, BookID: "b1"},
	})
	require.NoError(t, err)
	require.True(t, srv.HasSession(7))

	require.NoError(t, client.DeleteSession(context.Background(), 7))
	assert.False(t, srv.HasSession(7))

	// Deleting an unknown session is not an error.
	require.NoError(t, client.DeleteSession(context.Background(), 7))
}

func TestPullSessions(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.CreateSessions(context.Background(), []remote.SessionRecord{
		{Snowflake: 11, BookID: "b1"},
		{Snowflake: 12, BookID: "b2"},
	})
	require.NoError(t, err)

	resp, err := client.PullSessions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, resp.Sessions, 2)
}

func TestEmptyTokenIsConnectionError(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.New(srv.URL(), remote.StaticToken(""), logger)

	_, err := client.ListBooks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrConnection))
}

func TestUnreachableHostIsConnectionError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.New("http://127.0.0.1:1", remote.StaticToken("tok"), logger)

	_, err := client.ListBooks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrConnection))
}

func TestServerErrorIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.New(srv.URL, remote.StaticToken("tok"), logger)

	_, err := client.ListBooks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrRemote))
}
