// Package telegram hosts the chat front end. Incoming messages become
// workflows, and workflow progress is streamed back into the chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/vijay-varadarajan/AutoAgent/internal/log"
	"github.com/vijay-varadarajan/AutoAgent/internal/parser"
	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/capability"
	"github.com/vijay-varadarajan/AutoAgent/pkg/engine"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

// IntentParser converts a free-text request into a workflow structure and
// answers messages that carry no tasks conversationally.
type IntentParser interface {
	Parse(ctx context.Context, prompt string) (parser.Output, error)
	Respond(ctx context.Context, prompt string) (string, error)
}

// AuthLinker produces the consent URL a user must visit to grant scopes.
type AuthLinker interface {
	AuthURL(userID string) string
}

// Bot wires the Telegram transport to the workflow engine.
type Bot struct {
	api      *bot.Bot
	store    storage.Store
	registry *capability.Registry
	gate     *auth.Gate
	parser   IntentParser
	linker   AuthLinker
	logger   *logrus.Logger
}

func NewBot(token string, store storage.Store, registry *capability.Registry, gate *auth.Gate, intentParser IntentParser, linker AuthLinker) (*Bot, error) {
	b := &Bot{
		store:    store,
		registry: registry,
		gate:     gate,
		parser:   intentParser,
		linker:   linker,
		logger:   log.GetLogger(),
	}

	api, err := bot.New(token, bot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, err
	}
	b.api = api
	return b, nil
}

// API exposes the underlying client so background runs can reuse it.
func (b *Bot) API() API {
	return b.api
}

// Start blocks polling for updates until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Telegram bot started")
	b.api.Start(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	if err := b.store.SaveChatBinding(userID, chatID); err != nil {
		b.logger.Errorf("Saving chat binding for user %s: %v", userID, err)
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start":
		b.reply(ctx, chatID, startText)
	case text == "/help":
		b.reply(ctx, chatID, helpText)
	case text == "/connect":
		b.reply(ctx, chatID, fmt.Sprintf("🔐 Connect your Google account:\n%s", b.linker.AuthURL(userID)))
	case strings.HasPrefix(text, "/"):
		b.reply(ctx, chatID, "Unknown command. Send /help to see what I can do.")
	case text == "":
		b.reply(ctx, chatID, "Please send a text message describing what you want to do.")
	default:
		b.handleRequest(ctx, userID, chatID, text)
	}
}

// handleRequest runs the full pipeline for one user request: parse,
// persist, execute, and report.
func (b *Bot) handleRequest(ctx context.Context, userID string, chatID int64, prompt string) {
	b.logger.Infof("Received request from user %s", userID)

	parsed, err := b.parser.Parse(ctx, prompt)
	if err != nil {
		b.logger.Errorf("Parsing request for user %s: %v", userID, err)
		b.reply(ctx, chatID, "❌ Sorry, I could not understand that request. Please try rephrasing it.")
		return
	}
	if len(parsed.Tasks) == 0 {
		// Not a workflow request. Answer conversationally instead of
		// bouncing the user to /help.
		b.converse(ctx, chatID, prompt)
		return
	}

	wf := models.Workflow{
		UserID:    userID,
		Prompt:    prompt,
		Frequency: parsed.Frequency,
		Tasks:     parsed.Tasks,
		Status:    models.PendingWorkflowStatus,
	}
	id, err := b.store.SaveWorkflow(wf)
	if err != nil {
		b.logger.Errorf("Saving workflow for user %s: %v", userID, err)
		b.reply(ctx, chatID, "❌ Something went wrong saving your workflow. Please try again.")
		return
	}

	exec := engine.NewExecutor(b.store, b.registry, b.gate, NewLiveNotifier(b.api, chatID), b.logger, id)
	if !exec.Load() {
		b.reply(ctx, chatID, "❌ Something went wrong loading your workflow. Please try again.")
		return
	}

	result, err := exec.Execute(ctx)
	if err != nil {
		b.logger.Errorf("Executing workflow %s: %v", id, err)
		b.reply(ctx, chatID, "❌ Workflow execution hit an internal error. Please try again later.")
		return
	}
	if result.Suspended {
		b.reply(ctx, chatID, fmt.Sprintf(
			"To run this workflow I need additional permissions: %s\n\nAuthorize here:\n%s",
			strings.Join(result.MissingScopes, ", "), b.linker.AuthURL(userID)))
	}
}

// converse handles non-workflow messages: greetings and general chat get a
// model-generated reply.
func (b *Bot) converse(ctx context.Context, chatID int64, prompt string) {
	reply, err := b.parser.Respond(ctx, prompt)
	if err != nil {
		b.logger.Errorf("Conversational response failed: %v", err)
		b.reply(ctx, chatID, "Sorry, I couldn't process that as a conversation.")
		return
	}
	b.reply(ctx, chatID, reply)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		b.logger.Errorf("Sending message to chat %d: %v", chatID, err)
	}
}

const startText = `👋 Welcome to AutoAgent!

Describe what you want in plain language and I will turn it into a workflow.

For example:
• "Send an email to alice@example.com with subject Hello and body Hi there"
• "Read my emails from bob@example.com"

Use /connect to link your Google account first.`

const helpText = `Here is what I can do:

📧 Send emails: "Send an email to <address> with subject <subject> and body <text>"
📬 Read emails: "Read my emails matching <query>"

Commands:
/start - introduction
/connect - link your Google account
/help - this message`
