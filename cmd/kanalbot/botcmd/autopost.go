package botcmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/davronovuz/smart-kanal-post-bot/internal/settings"
)

// shouldFire reports whether the schedule has a slot at the given local
// wall clock minute.
func shouldFire(s settings.Settings, hhmm string) bool {
	if !s.AutoPostEnabled {
		return false
	}
	for _, t := range s.PostTimes {
		if t == hhmm {
			return true
		}
	}
	return false
}

// localClock formats now in the configured fixed offset as HH:MM.
func localClock(now time.Time, offsetHours int) string {
	loc := time.FixedZone("local", offsetHours*3600)
	return now.In(loc).Format("15:04")
}

// nextTopic picks the topic under the round-robin cursor and advances it,
// persisting the new cursor position.
func nextTopic(store *settings.Store) (string, error) {
	var topic string
	err := store.Mutate(func(s *settings.Settings) error {
		if len(s.Topics) == 0 {
			return nil
		}
		if s.TopicCursor < 0 || s.TopicCursor >= len(s.Topics) {
			s.TopicCursor = 0
		}
		topic = s.Topics[s.TopicCursor]
		s.TopicCursor = (s.TopicCursor + 1) % len(s.Topics)
		return nil
	})
	return topic, err
}

// runAutoPost checks the schedule once a minute and publishes a post for
// the next topic when a slot fires. Each wall clock minute fires at most
// once even though the ticker can land twice inside it.
func runAutoPost(ctx context.Context, logger *slog.Logger, store *settings.Store, publish func(ctx context.Context, topic string) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastFired string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cur := store.Current()
			hhmm := localClock(now, cur.TimezoneOffset)
			if hhmm == lastFired || !shouldFire(cur, hhmm) {
				continue
			}
			lastFired = hhmm

			topic, err := nextTopic(store)
			if err != nil {
				logger.Warn("autopost_topic_error", "error", err.Error())
				continue
			}
			if topic == "" {
				logger.Warn("autopost_skipped", "reason", "no topics configured")
				continue
			}

			logger.Info("autopost_fire", "slot", hhmm, "topic", topic)
			if err := publish(ctx, topic); err != nil {
				logger.Error("autopost_failed", "topic", topic, "error", err.Error())
			}
		}
	}
}
