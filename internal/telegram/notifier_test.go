package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

type apiCall struct {
	method string
	chatID any
	msgID  int
	text   string
}

type fakeAPI struct {
	calls  []apiCall
	nextID int
}

func (f *fakeAPI) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.nextID++
	f.calls = append(f.calls, apiCall{method: "send", chatID: params.ChatID, text: params.Text})
	return &tgmodels.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error) {
	f.calls = append(f.calls, apiCall{method: "edit", chatID: params.ChatID, msgID: params.MessageID, text: params.Text})
	return &tgmodels.Message{ID: params.MessageID}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error) {
	f.calls = append(f.calls, apiCall{method: "delete", chatID: params.ChatID, msgID: params.MessageID})
	return true, nil
}

func TestLiveNotifierLifecycle(t *testing.T) {
	api := &fakeAPI{}
	n := NewLiveNotifier(api, 777)
	ctx := context.Background()

	id, err := n.Announce(ctx, "thinking...")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	require.NoError(t, n.Update(ctx, id, "still thinking"))
	require.NoError(t, n.Retire(ctx, id))
	require.NoError(t, n.Finalize(ctx, "done"))

	require.Len(t, api.calls, 4)
	assert.Equal(t, "send", api.calls[0].method)
	assert.Equal(t, "edit", api.calls[1].method)
	assert.Equal(t, 1, api.calls[1].msgID)
	assert.Equal(t, "delete", api.calls[2].method)
	assert.Equal(t, "send", api.calls[3].method)
	assert.Equal(t, "done", api.calls[3].text)
	for _, c := range api.calls {
		assert.Equal(t, int64(777), c.chatID)
	}
}

func TestBackgroundNotifierResolvesChatLazily(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMockStore()
	require.NoError(t, store.SaveChatBinding("u1", 555))

	n := NewBackgroundNotifier(api, store, "u1")
	ctx := context.Background()

	id, err := n.Announce(ctx, "resuming...")
	require.NoError(t, err)
	require.NoError(t, n.Finalize(ctx, "done"))

	require.Len(t, api.calls, 2)
	assert.Equal(t, int64(555), api.calls[0].chatID)
	assert.Equal(t, int64(555), api.calls[1].chatID)
	assert.Equal(t, 1, id)
}

func TestBackgroundNotifierWithoutBinding(t *testing.T) {
	api := &fakeAPI{}
	n := NewBackgroundNotifier(api, storage.NewMockStore(), "stranger")

	_, err := n.Announce(context.Background(), "hello?")
	assert.Error(t, err)
	assert.Empty(t, api.calls, "no message goes out without a chat to target")
}
