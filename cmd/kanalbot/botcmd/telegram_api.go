package botcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type telegramAPI struct {
	http    *http.Client
	baseURL string
	token   string
}

func newTelegramAPI(httpClient *http.Client, baseURL, token string) *telegramAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &telegramAPI{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type telegramRequestError struct {
	Status      int
	Description string
}

func (e *telegramRequestError) Error() string {
	return fmt.Sprintf("telegram http %d: %s", e.Status, e.Description)
}

// cantParseEntities reports whether the error is Telegram rejecting the
// HTML markup of a message, in which case resending as plain text works.
func cantParseEntities(err error) bool {
	reqErr, ok := err.(*telegramRequestError)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(reqErr.Description), "can't parse entities")
}

type telegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *telegramMessage       `json:"message,omitempty"`
	EditedMessage *telegramMessage       `json:"edited_message,omitempty"`
	CallbackQuery *telegramCallbackQuery `json:"callback_query,omitempty"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	Chat      *telegramChat `json:"chat,omitempty"`
	From      *telegramUser `json:"from,omitempty"`
	Text      string        `json:"text,omitempty"`
	Caption   string        `json:"caption,omitempty"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type telegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    *telegramUser    `json:"from,omitempty"`
	Message *telegramMessage `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

type telegramGetUpdatesResponse struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

type telegramGetMeResponse struct {
	OK     bool         `json:"ok"`
	Result telegramUser `json:"result"`
}

type telegramMessageResponse struct {
	OK     bool            `json:"ok"`
	Result telegramMessage `json:"result"`
}

type telegramOKResponse struct {
	OK bool `json:"ok"`
}

// call posts a JSON payload to a bot API method. Non-2xx responses become
// *telegramRequestError carrying Telegram's description so callers can
// react to specific failures.
func (api *telegramAPI) call(ctx context.Context, method string, payload any, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		desc := strings.TrimSpace(apiErr.Description)
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &telegramRequestError{Status: resp.StatusCode, Description: desc}
	}
	if out == nil {
		var ok telegramOKResponse
		_ = json.Unmarshal(raw, &ok)
		if !ok.OK {
			return fmt.Errorf("telegram %s: ok=false", method)
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	return nil
}

func (api *telegramAPI) getMe(ctx context.Context) (*telegramUser, error) {
	url := fmt.Sprintf("%s/bot%s/getMe", api.baseURL, api.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out telegramGetMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getMe: ok=false")
	}
	return &out.Result, nil
}

func (api *telegramAPI) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegramUpdate, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d", api.baseURL, api.token, secs)
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, offset, err
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, offset, fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out telegramGetUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

type telegramSendMessageRequest struct {
	ChatID                any                   `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// sendMessage sends HTML formatted text. When Telegram rejects the markup
// the send is retried as plain text so the user still gets the content.
func (api *telegramAPI) sendMessage(ctx context.Context, chatID any, text string, markup *inlineKeyboardMarkup) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	id, err := api.sendMessageWithParseMode(ctx, chatID, text, "HTML", markup)
	if err != nil && cantParseEntities(err) {
		return api.sendMessageWithParseMode(ctx, chatID, text, "", markup)
	}
	return id, err
}

func (api *telegramAPI) sendMessageWithParseMode(ctx context.Context, chatID any, text, parseMode string, markup *inlineKeyboardMarkup) (int64, error) {
	var out telegramMessageResponse
	err := api.call(ctx, "sendMessage", telegramSendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}, &out)
	if err != nil {
		return 0, err
	}
	if !out.OK {
		return 0, fmt.Errorf("telegram sendMessage: ok=false")
	}
	return out.Result.MessageID, nil
}

type telegramSendPhotoRequest struct {
	ChatID      any                   `json:"chat_id"`
	Photo       string                `json:"photo"`
	Caption     string                `json:"caption,omitempty"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *telegramAPI) sendPhoto(ctx context.Context, chatID any, photoURL, caption string, markup *inlineKeyboardMarkup) (int64, error) {
	id, err := api.sendPhotoWithParseMode(ctx, chatID, photoURL, caption, "HTML", markup)
	if err != nil && cantParseEntities(err) {
		return api.sendPhotoWithParseMode(ctx, chatID, photoURL, caption, "", markup)
	}
	return id, err
}

func (api *telegramAPI) sendPhotoWithParseMode(ctx context.Context, chatID any, photoURL, caption, parseMode string, markup *inlineKeyboardMarkup) (int64, error) {
	var out telegramMessageResponse
	err := api.call(ctx, "sendPhoto", telegramSendPhotoRequest{
		ChatID:      chatID,
		Photo:       photoURL,
		Caption:     caption,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	}, &out)
	if err != nil {
		return 0, err
	}
	if !out.OK {
		return 0, fmt.Errorf("telegram sendPhoto: ok=false")
	}
	return out.Result.MessageID, nil
}

type telegramEditMessageTextRequest struct {
	ChatID                any                   `json:"chat_id"`
	MessageID             int64                 `json:"message_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *telegramAPI) editMessageText(ctx context.Context, chatID int64, messageID int64, text string, markup *inlineKeyboardMarkup) error {
	req := telegramEditMessageTextRequest{
		ChatID:                chatID,
		MessageID:             messageID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}
	err := api.call(ctx, "editMessageText", req, nil)
	if err != nil && cantParseEntities(err) {
		req.ParseMode = ""
		return api.call(ctx, "editMessageText", req, nil)
	}
	return err
}

type telegramEditMessageCaptionRequest struct {
	ChatID      any                   `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Caption     string                `json:"caption"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *telegramAPI) editMessageCaption(ctx context.Context, chatID int64, messageID int64, caption string, markup *inlineKeyboardMarkup) error {
	req := telegramEditMessageCaptionRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Caption:     caption,
		ParseMode:   "HTML",
		ReplyMarkup: markup,
	}
	err := api.call(ctx, "editMessageCaption", req, nil)
	if err != nil && cantParseEntities(err) {
		req.ParseMode = ""
		return api.call(ctx, "editMessageCaption", req, nil)
	}
	return err
}

type telegramEditMessageReplyMarkupRequest struct {
	ChatID      any                   `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *telegramAPI) editMessageReplyMarkup(ctx context.Context, chatID int64, messageID int64, markup *inlineKeyboardMarkup) error {
	return api.call(ctx, "editMessageReplyMarkup", telegramEditMessageReplyMarkupRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}, nil)
}

type telegramDeleteMessageRequest struct {
	ChatID    any   `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (api *telegramAPI) deleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	return api.call(ctx, "deleteMessage", telegramDeleteMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
}

type telegramAnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

func (api *telegramAPI) answerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return api.call(ctx, "answerCallbackQuery", telegramAnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}

// postKeyboard is the action row shown under every draft preview.
func postKeyboard(postID string) *inlineKeyboardMarkup {
	return &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{
		{
			{Text: "✅ Publish", CallbackData: "publish:" + postID},
			{Text: "🔄 Regenerate", CallbackData: "regenerate:" + postID},
		},
		{
			{Text: "✏️ Edit", CallbackData: "edit:" + postID},
			{Text: "❌ Cancel", CallbackData: "cancel:" + postID},
		},
	}}
}

// channelRecipient converts the configured channel into a sendMessage
// chat_id value. Usernames like "@mychannel" stay strings, raw ids become
// numbers.
func channelRecipient(channel string) any {
	channel = strings.TrimSpace(channel)
	if strings.HasPrefix(channel, "@") {
		return channel
	}
	var id int64
	if _, err := fmt.Sscanf(channel, "%d", &id); err == nil {
		return id
	}
	return channel
}
