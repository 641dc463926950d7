package botcmd

import (
	"strconv"
	"strings"

	"github.com/davronovuz/smart-kanal-post-bot/internal/settings"
)

func helpText() string {
	return strings.Join([]string{
		"<b>Channel post bot</b>",
		"",
		"Post creation:",
		"/research &lt;topic&gt; — researched post with an image",
		"/quick &lt;topic&gt; — short text-only post",
		"/compare &lt;topic&gt; — comparison post",
		"/trending — post about today's tech news",
		"/publish &lt;topic&gt; — research and publish in one step",
		"",
		"Auto-posting:",
		"/settings — show the current schedule",
		"/settimes — change posting times",
		"/settopics — change the topic rotation",
		"/toggle — turn auto-posting on or off",
		"/status — bot status",
		"",
		"/cancel — abort the current input",
	}, "\n")
}

func settingsText(s settings.Settings) string {
	state := "off"
	if s.AutoPostEnabled {
		state = "on"
	}
	var b strings.Builder
	b.WriteString("<b>⚙️ Auto-posting</b>\n\n")
	b.WriteString("State: " + state + "\n")
	b.WriteString("Times: " + strings.Join(s.PostTimes, ", ") + "\n")
	b.WriteString("Timezone: UTC" + formatOffset(s.TimezoneOffset) + "\n\n")
	b.WriteString("Topics:\n")
	for i, topic := range s.Topics {
		marker := "  "
		if i == s.TopicCursor {
			marker = "▸ "
		}
		b.WriteString(marker + topic + "\n")
	}
	if len(s.Topics) == 0 {
		b.WriteString("  (none)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusText(s settings.Settings, storeDriver, channel string) string {
	state := "off"
	if s.AutoPostEnabled {
		state = "on"
	}
	return strings.Join([]string{
		"<b>📊 Status</b>",
		"",
		"Channel: " + channel,
		"Store: " + storeDriver,
		"Auto-posting: " + state + " (" + strings.Join(s.PostTimes, ", ") + ")",
	}, "\n")
}

func formatOffset(hours int) string {
	if hours >= 0 {
		return "+" + strconv.Itoa(hours)
	}
	return strconv.Itoa(hours)
}
