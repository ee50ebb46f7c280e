package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/vijay-varadarajan/AutoAgent/pkg/engine"
)

// API is the subset of the Telegram client the notifiers need.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// LiveNotifier streams workflow progress into the chat the request came
// from. One instance serves one workflow run.
type LiveNotifier struct {
	api    API
	chatID int64
}

func NewLiveNotifier(api API, chatID int64) *LiveNotifier {
	return &LiveNotifier{api: api, chatID: chatID}
}

func (n *LiveNotifier) Announce(ctx context.Context, text string) (int, error) {
	msg, err := n.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (n *LiveNotifier) Update(ctx context.Context, messageID int, text string) error {
	_, err := n.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    n.chatID,
		MessageID: messageID,
		Text:      text,
	})
	return err
}

func (n *LiveNotifier) Retire(ctx context.Context, messageID int) error {
	_, err := n.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    n.chatID,
		MessageID: messageID,
	})
	return err
}

func (n *LiveNotifier) Finalize(ctx context.Context, text string) error {
	_, err := n.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	return err
}

// ChatDirectory resolves a user to the chat their bot conversation lives
// in. Implemented by the store via chat bindings.
type ChatDirectory interface {
	GetChatBinding(userID string) (int64, error)
}

// BackgroundNotifier delivers progress for runs that start outside a chat
// interaction, such as a resume after OAuth consent. The chat is looked up
// lazily so construction never fails.
type BackgroundNotifier struct {
	api    API
	dir    ChatDirectory
	userID string

	chatID int64
	bound  bool
}

func NewBackgroundNotifier(api API, dir ChatDirectory, userID string) *BackgroundNotifier {
	return &BackgroundNotifier{api: api, dir: dir, userID: userID}
}

func (n *BackgroundNotifier) resolve() (int64, error) {
	if !n.bound {
		chatID, err := n.dir.GetChatBinding(n.userID)
		if err != nil {
			return 0, err
		}
		n.chatID = chatID
		n.bound = true
	}
	return n.chatID, nil
}

func (n *BackgroundNotifier) Announce(ctx context.Context, text string) (int, error) {
	chatID, err := n.resolve()
	if err != nil {
		return 0, err
	}
	msg, err := n.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (n *BackgroundNotifier) Update(ctx context.Context, messageID int, text string) error {
	chatID, err := n.resolve()
	if err != nil {
		return err
	}
	_, err = n.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	return err
}

func (n *BackgroundNotifier) Retire(ctx context.Context, messageID int) error {
	chatID, err := n.resolve()
	if err != nil {
		return err
	}
	_, err = n.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

func (n *BackgroundNotifier) Finalize(ctx context.Context, text string) error {
	chatID, err := n.resolve()
	if err != nil {
		return err
	}
	_, err = n.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

var (
	_ engine.Notifier = (*LiveNotifier)(nil)
	_ engine.Notifier = (*BackgroundNotifier)(nil)
)
