// Package botcmd runs the Telegram bot: long polling, per-chat workers,
// command and callback routing, and the auto-posting scheduler.
package botcmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davronovuz/smart-kanal-post-bot/internal/channel"
	"github.com/davronovuz/smart-kanal-post-bot/internal/logutil"
	"github.com/davronovuz/smart-kanal-post-bot/internal/settings"
	"github.com/davronovuz/smart-kanal-post-bot/post"
	"github.com/davronovuz/smart-kanal-post-bot/providers/openai"
	"github.com/davronovuz/smart-kanal-post-bot/research"
)

type botJob struct {
	ChatID   int64
	Message  *telegramMessage
	Callback *telegramCallbackQuery
}

type chatWorker struct {
	Jobs chan botJob
}

type bot struct {
	api         *telegramAPI
	svc         *post.Service
	settings    *settings.Store
	logger      *slog.Logger
	pending     *pendingTable
	admins      map[int64]bool
	channel     string
	storeDriver string
	taskTimeout time.Duration

	mu      sync.Mutex
	workers map[int64]*chatWorker
	sem     chan struct{}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-channel", "", "Target channel: @username or numeric chat id.")
	cmd.Flags().StringArray("telegram-admin-id", nil, "Admin user id allowed to use the bot (repeatable; empty allows everyone).")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long poll timeout.")
	cmd.Flags().Int("telegram-max-concurrency", 3, "Max concurrent generations across chats.")
	cmd.Flags().Duration("task-timeout", 5*time.Minute, "Timeout for a single generation.")
	cmd.Flags().String("store", "memory", "Session store: memory|sqlite.")
	cmd.Flags().String("sqlite-path", "kanalbot.db", "SQLite database path (store=sqlite).")
	cmd.Flags().String("settings-path", "kanalbot_settings.json", "Auto-posting settings file.")

	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("telegram.channel", cmd.Flags().Lookup("telegram-channel"))
	_ = viper.BindPFlag("telegram.admin_ids", cmd.Flags().Lookup("telegram-admin-id"))
	_ = viper.BindPFlag("telegram.poll_timeout", cmd.Flags().Lookup("telegram-poll-timeout"))
	_ = viper.BindPFlag("telegram.max_concurrency", cmd.Flags().Lookup("telegram-max-concurrency"))
	_ = viper.BindPFlag("task_timeout", cmd.Flags().Lookup("task-timeout"))
	_ = viper.BindPFlag("store.driver", cmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("store.sqlite_path", cmd.Flags().Lookup("sqlite-path"))
	_ = viper.BindPFlag("settings.path", cmd.Flags().Lookup("settings-path"))

	return cmd
}

func runBot(ctx context.Context) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
	if token == "" {
		return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or KANALBOT_TELEGRAM_BOT_TOKEN)")
	}
	channelID := strings.TrimSpace(viper.GetString("telegram.channel"))
	if channelID == "" {
		return fmt.Errorf("missing telegram.channel (set via --telegram-channel or KANALBOT_TELEGRAM_CHANNEL)")
	}

	admins := make(map[int64]bool)
	for _, s := range viper.GetStringSlice("telegram.admin_ids") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid telegram.admin_ids entry %q: %w", s, err)
		}
		admins[id] = true
	}

	endpoint := strings.TrimSpace(viper.GetString("llm.endpoint"))
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	if apiKey == "" {
		return fmt.Errorf("missing llm.api_key (set via KANALBOT_LLM_API_KEY)")
	}
	model := strings.TrimSpace(viper.GetString("llm.model"))
	if model == "" {
		model = "gpt-4o"
	}
	reqTimeout := viper.GetDuration("llm.request_timeout")
	if reqTimeout <= 0 {
		reqTimeout = 2 * time.Minute
	}
	client := openai.New(endpoint, apiKey, reqTimeout)
	gen := research.New(client, model, logger)

	var store post.Store
	storeDriver := strings.TrimSpace(viper.GetString("store.driver"))
	switch storeDriver {
	case "", "memory":
		storeDriver = "memory"
		store = post.NewMemoryStore()
	case "sqlite":
		sqliteStore, err := post.NewSQLiteStore(viper.GetString("store.sqlite_path"))
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() { _ = sqliteStore.Close() }()
		store = sqliteStore
	default:
		return fmt.Errorf("unknown store.driver %q (want memory or sqlite)", storeDriver)
	}

	settingsStore, err := settings.NewStore(viper.GetString("settings.path"))
	if err != nil {
		return err
	}

	api := newTelegramAPI(&http.Client{Timeout: 60 * time.Second}, "https://api.telegram.org", token)

	recipient := channelRecipient(channelID)
	adapter := &channel.DeliveryAdapter{
		SendText: func(ctx context.Context, text string) error {
			_, err := api.sendMessage(ctx, recipient, text, nil)
			return err
		},
		SendPhoto: func(ctx context.Context, photoURL, caption string) error {
			_, err := api.sendPhoto(ctx, recipient, photoURL, caption, nil)
			return err
		},
	}

	svc := post.NewService(store, gen, adapter, post.Config{}, logger)

	maxConc := viper.GetInt("telegram.max_concurrency")
	if maxConc <= 0 {
		maxConc = 3
	}
	taskTimeout := viper.GetDuration("task_timeout")
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}

	b := &bot{
		api:         api,
		svc:         svc,
		settings:    settingsStore,
		logger:      logger,
		pending:     newPendingTable(),
		admins:      admins,
		channel:     channelID,
		storeDriver: storeDriver,
		taskTimeout: taskTimeout,
		workers:     make(map[int64]*chatWorker),
		sem:         make(chan struct{}, maxConc),
	}

	botUser, err := api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	pollTimeout := viper.GetDuration("telegram.poll_timeout")
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	logger.Info("bot_start",
		"bot_username", botUser.Username,
		"bot_id", botUser.ID,
		"channel", channelID,
		"store", storeDriver,
		"model", model,
		"poll_timeout", pollTimeout.String(),
		"max_concurrency", maxConc,
	)

	go runAutoPost(ctx, logger, settingsStore, b.autoPublish)

	return b.poll(ctx, pollTimeout)
}

// autoPublish generates a post for the topic and delivers it to the
// channel without operator review.
func (b *bot) autoPublish(ctx context.Context, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, b.taskTimeout)
	defer cancel()
	sess, err := b.svc.HandleCreate(ctx, uuid.NewString(), topic, post.KindFull, true)
	if err != nil {
		return err
	}
	return b.svc.HandlePublish(ctx, sess.ID)
}

func (b *bot) poll(ctx context.Context, pollTimeout time.Duration) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, nextOffset, err := b.api.getUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("get_updates_error", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			job, ok := b.jobFromUpdate(u)
			if !ok {
				continue
			}
			b.dispatch(ctx, job)
		}
	}
}

func (b *bot) jobFromUpdate(u telegramUpdate) (botJob, bool) {
	if cb := u.CallbackQuery; cb != nil && cb.Message != nil && cb.Message.Chat != nil {
		if !b.allowed(cb.From) {
			return botJob{}, false
		}
		return botJob{ChatID: cb.Message.Chat.ID, Callback: cb}, true
	}
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return botJob{}, false
	}
	if !b.allowed(msg.From) {
		b.logger.Debug("unauthorized_message", "chat_id", msg.Chat.ID)
		return botJob{}, false
	}
	return botJob{ChatID: msg.Chat.ID, Message: msg}, true
}

func (b *bot) allowed(from *telegramUser) bool {
	if len(b.admins) == 0 {
		return true
	}
	return from != nil && b.admins[from.ID]
}

// dispatch hands the job to the chat's worker, starting one on first use.
// Jobs from the same chat run in order; the semaphore caps generations
// running at once across all chats.
func (b *bot) dispatch(ctx context.Context, job botJob) {
	b.mu.Lock()
	w, ok := b.workers[job.ChatID]
	if !ok {
		w = &chatWorker{Jobs: make(chan botJob, 16)}
		b.workers[job.ChatID] = w
		go func() {
			for job := range w.Jobs {
				b.sem <- struct{}{}
				func() {
					defer func() { <-b.sem }()
					jobCtx, cancel := context.WithTimeout(ctx, b.taskTimeout)
					defer cancel()
					if job.Callback != nil {
						b.handleCallback(jobCtx, job.Callback)
					} else {
						b.handleMessage(jobCtx, job.Message)
					}
				}()
			}
		}()
	}
	b.mu.Unlock()

	select {
	case w.Jobs <- job:
	default:
		b.logger.Warn("chat_queue_full", "chat_id", job.ChatID)
	}
}
