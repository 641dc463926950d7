// Package settings holds the operator-tunable auto-posting schedule and
// persists it as JSON so it survives restarts.
package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/davronovuz/smart-kanal-post-bot/internal/fsstore"
)

// Settings is the persisted auto-posting configuration.
type Settings struct {
	AutoPostEnabled bool     `json:"auto_post_enabled"`
	PostTimes       []string `json:"post_times"`
	Topics          []string `json:"topics"`
	TimezoneOffset  int      `json:"timezone_offset"`
	TopicCursor     int      `json:"topic_cursor"`
}

// Defaults returns the configuration used before the operator changes
// anything: auto-posting off, a morning and an evening slot, UTC+5.
func Defaults() Settings {
	return Settings{
		AutoPostEnabled: false,
		PostTimes:       []string{"09:00", "18:00"},
		Topics: []string{
			"artificial intelligence news",
			"programming trends",
			"tech industry updates",
		},
		TimezoneOffset: 5,
	}
}

// Store keeps Settings in memory and mirrors every change to disk.
type Store struct {
	mu   sync.Mutex
	path string
	cur  Settings
}

// NewStore loads the settings file at path, falling back to Defaults when
// the file does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, cur: Defaults()}
	var loaded Settings
	found, err := fsstore.ReadJSON(path, &loaded)
	if err != nil {
		return nil, fmt.Errorf("settings load: %w", err)
	}
	if found {
		s.cur = loaded
	}
	return s, nil
}

// Current returns a copy of the settings. Slices are cloned so callers can
// not mutate the stored state.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// Mutate applies fn to the settings under the store lock and persists the
// result. When fn returns an error nothing is changed or written.
func (s *Store) Mutate(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := fsstore.WriteJSONAtomic(s.path, next, fsstore.FileOptions{}); err != nil {
		return fmt.Errorf("settings save: %w", err)
	}
	s.cur = next
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.PostTimes = append([]string(nil), s.PostTimes...)
	out.Topics = append([]string(nil), s.Topics...)
	return out
}

// ParseTimes validates a comma-separated list of HH:MM slots and returns
// them sorted and deduplicated.
func ParseTimes(input string) ([]string, error) {
	parts := strings.Split(input, ",")
	seen := make(map[string]struct{}, len(parts))
	times := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		normalized, err := normalizeTime(p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		times = append(times, normalized)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("settings: no valid times in %q", input)
	}
	sort.Strings(times)
	return times, nil
}

func normalizeTime(s string) (string, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("settings: %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("settings: bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("settings: bad minute in %q", s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ParseTopics splits a comma-separated topic list, trimming blanks.
func ParseTopics(input string) ([]string, error) {
	parts := strings.Split(input, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		topics = append(topics, p)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("settings: no topics in %q", input)
	}
	return topics, nil
}
