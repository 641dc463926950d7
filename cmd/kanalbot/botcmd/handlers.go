package botcmd

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/davronovuz/smart-kanal-post-bot/internal/settings"
	"github.com/davronovuz/smart-kanal-post-bot/post"
)

// Telegram caps photo captions at 1024; previews leave room for an
// ellipsis.
const previewCaptionLimit = 1000

func (b *bot) handleMessage(ctx context.Context, msg *telegramMessage) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, text)
		return
	}
	if p, ok := b.pending.pop(chatID); ok {
		b.consumePending(ctx, chatID, p, text)
		return
	}
	b.reply(ctx, chatID, "Send a command. /help lists them.")
}

func (b *bot) handleCommand(ctx context.Context, chatID int64, text string) {
	cmd, arg, _ := strings.Cut(text, " ")
	// Group clients append the bot username: /research@somebot.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/start", "/help":
		b.pending.clear(chatID)
		b.reply(ctx, chatID, helpText())
	case "/research":
		b.runGeneration(ctx, chatID, arg, post.KindFull)
	case "/quick":
		b.runGeneration(ctx, chatID, arg, post.KindQuick)
	case "/compare":
		b.runGeneration(ctx, chatID, arg, post.KindCompare)
	case "/trending":
		topic := arg
		if topic == "" {
			topic = "technology"
		}
		b.runGeneration(ctx, chatID, topic, post.KindTrending)
	case "/publish":
		b.publishDirect(ctx, chatID, arg)
	case "/settings":
		b.reply(ctx, chatID, settingsText(b.settings.Current()))
	case "/settimes":
		if arg != "" {
			b.applyTimes(ctx, chatID, arg)
			return
		}
		b.pending.set(chatID, pendingInput{Kind: pendingTimes})
		b.reply(ctx, chatID, "Send posting times as HH:MM, comma separated. Example: 09:00, 14:00, 19:00")
	case "/settopics":
		if arg != "" {
			b.applyTopics(ctx, chatID, arg)
			return
		}
		b.pending.set(chatID, pendingInput{Kind: pendingTopics})
		b.reply(ctx, chatID, "Send topics, comma separated. Example: AI news, golang releases, devops")
	case "/toggle":
		b.toggleAutoPost(ctx, chatID)
	case "/status":
		b.reply(ctx, chatID, statusText(b.settings.Current(), b.storeDriver, b.channel))
	case "/cancel":
		b.pending.clear(chatID)
		b.reply(ctx, chatID, "Cancelled.")
	default:
		b.reply(ctx, chatID, "Unknown command. /help lists them.")
	}
}

// runGeneration creates a draft for the topic and shows the preview with
// the action keyboard. A status message keeps the user informed while the
// research runs.
func (b *bot) runGeneration(ctx context.Context, chatID int64, topic string, kind post.Kind) {
	if topic == "" {
		b.reply(ctx, chatID, "Add a topic after the command. Example: /research Go generics")
		return
	}

	statusID, err := b.api.sendMessage(ctx, chatID, "🔍 Researching the topic, this can take a minute…", nil)
	if err != nil {
		b.logger.Warn("send_error", "chat_id", chatID, "error", err.Error())
	}

	sess, err := b.svc.HandleCreate(ctx, strconv.FormatInt(statusID, 10), topic, kind, kind == post.KindFull)
	if err != nil {
		b.logger.Error("generation_failed", "chat_id", chatID, "topic", topic, "error", err.Error())
		b.editOrSend(ctx, chatID, statusID, "⚠️ Could not build the post: "+err.Error())
		return
	}

	if statusID != 0 {
		_ = b.api.deleteMessage(ctx, chatID, statusID)
	}
	b.sendPreview(ctx, chatID, sess)
}

// sendPreview shows the draft with the publish/regenerate/edit/cancel
// keyboard. Posts with a broken image URL degrade to a text preview.
func (b *bot) sendPreview(ctx context.Context, chatID int64, sess post.Session) {
	markup := postKeyboard(sess.ID)
	if sess.ImageURL != "" {
		_, err := b.api.sendPhoto(ctx, chatID, sess.ImageURL, previewCaption(sess.Text), markup)
		if err == nil {
			return
		}
		b.logger.Warn("preview_photo_failed", "session_id", sess.ID, "error", err.Error())
	}
	if _, err := b.api.sendMessage(ctx, chatID, sess.Text, markup); err != nil {
		b.logger.Error("preview_send_failed", "session_id", sess.ID, "error", err.Error())
	}
}

func previewCaption(text string) string {
	runes := []rune(text)
	if len(runes) <= previewCaptionLimit {
		return text
	}
	return string(runes[:previewCaptionLimit]) + "…"
}

// publishDirect researches the topic and pushes it straight to the
// channel with no review step.
func (b *bot) publishDirect(ctx context.Context, chatID int64, topic string) {
	if topic == "" {
		b.reply(ctx, chatID, "Add a topic after the command. Example: /publish Go generics")
		return
	}
	statusID, _ := b.api.sendMessage(ctx, chatID, "🔍 Researching the topic…", nil)

	sess, err := b.svc.HandleCreate(ctx, strconv.FormatInt(statusID, 10), topic, post.KindFull, true)
	if err != nil {
		b.editOrSend(ctx, chatID, statusID, "⚠️ Could not build the post: "+err.Error())
		return
	}
	b.editOrSend(ctx, chatID, statusID, "📤 Publishing…")
	if err := b.svc.HandlePublish(ctx, sess.ID); err != nil {
		b.editOrSend(ctx, chatID, statusID, "⚠️ Publish failed: "+err.Error())
		return
	}
	b.editOrSend(ctx, chatID, statusID, "✅ Published to "+b.channel)
}

func (b *bot) consumePending(ctx context.Context, chatID int64, p pendingInput, text string) {
	switch p.Kind {
	case pendingEditInstruction:
		b.applyEdit(ctx, chatID, p, text)
	case pendingTimes:
		b.applyTimes(ctx, chatID, text)
	case pendingTopics:
		b.applyTopics(ctx, chatID, text)
	}
}

// applyEdit rewrites the draft per the instruction and refreshes the
// preview message in place.
func (b *bot) applyEdit(ctx context.Context, chatID int64, p pendingInput, instruction string) {
	statusID, _ := b.api.sendMessage(ctx, chatID, "✏️ Rewriting…", nil)

	if _, err := b.svc.HandleEdit(ctx, p.PostID, instruction); err != nil {
		b.editOrSend(ctx, chatID, statusID, "⚠️ "+actionErrorText(err))
		return
	}
	if statusID != 0 {
		_ = b.api.deleteMessage(ctx, chatID, statusID)
	}

	sess, err := b.svc.Get(ctx, p.PostID)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ "+actionErrorText(err))
		return
	}
	if p.PreviewMessageID == 0 {
		b.sendPreview(ctx, chatID, sess)
		return
	}
	b.refreshPreview(ctx, chatID, p.PreviewMessageID, p.PreviewHasPhoto, sess)
}

func (b *bot) applyTimes(ctx context.Context, chatID int64, input string) {
	times, err := settings.ParseTimes(input)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ "+err.Error()+". Try again with /settimes.")
		return
	}
	err = b.settings.Mutate(func(s *settings.Settings) error {
		s.PostTimes = times
		return nil
	})
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Could not save: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "✅ Posting times set: "+strings.Join(times, ", "))
}

func (b *bot) applyTopics(ctx context.Context, chatID int64, input string) {
	topics, err := settings.ParseTopics(input)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ "+err.Error()+". Try again with /settopics.")
		return
	}
	err = b.settings.Mutate(func(s *settings.Settings) error {
		s.Topics = topics
		s.TopicCursor = 0
		return nil
	})
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Could not save: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "✅ Topics updated ("+strings.Join(topics, ", ")+")")
}

func (b *bot) toggleAutoPost(ctx context.Context, chatID int64) {
	var enabled bool
	err := b.settings.Mutate(func(s *settings.Settings) error {
		s.AutoPostEnabled = !s.AutoPostEnabled
		enabled = s.AutoPostEnabled
		return nil
	})
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Could not save: "+err.Error())
		return
	}
	if enabled {
		b.reply(ctx, chatID, "✅ Auto-posting is on.")
	} else {
		b.reply(ctx, chatID, "⏸ Auto-posting is off.")
	}
}

func (b *bot) handleCallback(ctx context.Context, cb *telegramCallbackQuery) {
	action, postID, ok := strings.Cut(cb.Data, ":")
	if !ok || postID == "" {
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "Malformed action")
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	// Photo previews carry the draft in the caption, text previews in the
	// body. Distinguishes which edit call refreshes them.
	hasPhoto := cb.Message.Text == ""

	switch action {
	case "publish":
		if err := b.svc.HandlePublish(ctx, postID); err != nil {
			_ = b.api.answerCallbackQuery(ctx, cb.ID, actionErrorText(err))
			return
		}
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "✅ Published")
		_ = b.api.editMessageReplyMarkup(ctx, chatID, messageID, nil)
	case "regenerate":
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "🔄 Regenerating…")
		if _, err := b.svc.HandleRegenerate(ctx, postID); err != nil {
			b.reply(ctx, chatID, "⚠️ "+actionErrorText(err))
			return
		}
		sess, err := b.svc.Get(ctx, postID)
		if err != nil {
			b.reply(ctx, chatID, "⚠️ "+actionErrorText(err))
			return
		}
		b.refreshPreview(ctx, chatID, messageID, hasPhoto, sess)
	case "edit":
		b.pending.set(chatID, pendingInput{
			Kind:             pendingEditInstruction,
			PostID:           postID,
			PreviewMessageID: messageID,
			PreviewHasPhoto:  hasPhoto,
		})
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "")
		b.reply(ctx, chatID, "✏️ Send the change you want, e.g. \"make it shorter\" or \"add emoji\".")
	case "cancel":
		if err := b.svc.HandleCancel(ctx, postID); err != nil {
			_ = b.api.answerCallbackQuery(ctx, cb.ID, actionErrorText(err))
			return
		}
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "❌ Cancelled")
		_ = b.api.deleteMessage(ctx, chatID, messageID)
	default:
		_ = b.api.answerCallbackQuery(ctx, cb.ID, "Unknown action")
	}
}

func (b *bot) refreshPreview(ctx context.Context, chatID, messageID int64, hasPhoto bool, sess post.Session) {
	markup := postKeyboard(sess.ID)
	var err error
	if hasPhoto {
		err = b.api.editMessageCaption(ctx, chatID, messageID, previewCaption(sess.Text), markup)
	} else {
		err = b.api.editMessageText(ctx, chatID, messageID, sess.Text, markup)
	}
	if err != nil {
		b.logger.Warn("preview_refresh_failed", "session_id", sess.ID, "error", err.Error())
		b.sendPreview(ctx, chatID, sess)
	}
}

func actionErrorText(err error) string {
	switch {
	case errors.Is(err, post.ErrNotFound):
		return "Post not found. It may have been cancelled already."
	case errors.Is(err, post.ErrInvalidState):
		return "Post is already finalized."
	default:
		return "Error: " + err.Error()
	}
}

func (b *bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.sendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Warn("send_error", "chat_id", chatID, "error", err.Error())
	}
}

// editOrSend updates the status message in place, falling back to a fresh
// message when there is nothing to edit.
func (b *bot) editOrSend(ctx context.Context, chatID, messageID int64, text string) {
	if messageID != 0 {
		if err := b.api.editMessageText(ctx, chatID, messageID, text, nil); err == nil {
			return
		}
	}
	b.reply(ctx, chatID, text)
}
