package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-hug-go/internal/model"
	"daily-hug-go/internal/repository"
)

type stubExchanges struct {
	repository.ExchangeRepository
	gotLimit int
	rows     []model.ChatExchange
}

func (s *stubExchanges) ListByUser(_ context.Context, _ string, limit int) ([]model.ChatExchange, error) {
	s.gotLimit = limit
	return s.rows, nil
}

type stubTranscripts struct {
	repository.ConversationRepository
	entries []model.TranscriptEntry
}

func (s *stubTranscripts) GetTranscript(context.Context, string, string) ([]model.TranscriptEntry, error) {
	return s.entries, nil
}

func TestListExchangesClampsLimit(t *testing.T) {
	ex := &stubExchanges{}
	svc := NewConversationService(&stubTranscripts{}, ex)

	tests := []struct{ in, want int }{
		{0, DefaultExchangeLimit},
		{-3, DefaultExchangeLimit},
		{5, 5},
		{10000, MaxExchangeLimit},
	}
	for _, tc := range tests {
		_, err := svc.ListExchanges(context.Background(), "u", tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ex.gotLimit)
	}
}

func TestListExchangesConvertsRows(t *testing.T) {
	at := time.Date(2024, 9, 9, 22, 36, 0, 0, time.UTC)
	ex := &stubExchanges{rows: []model.ChatExchange{{ID: 3, UserName: "u", ModelName: "m", Message: "q", Response: "a", CreatedAt: at}}}
	views, err := NewConversationService(&stubTranscripts{}, ex).ListExchanges(context.Background(), "u", 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, uint(3), views[0].ID)
	assert.Equal(t, "a", views[0].Response)

	b, err := views[0].CreatedAt.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-09-09 22:36:00"`, string(b))
}

func TestGetTranscript(t *testing.T) {
	tr := &stubTranscripts{entries: []model.TranscriptEntry{{Role: "user", Content: "hi"}}}
	got, err := NewConversationService(tr, &stubExchanges{}).GetTranscript(context.Background(), "u", "m")
	require.NoError(t, err)
	assert.Equal(t, tr.entries, got)
}
