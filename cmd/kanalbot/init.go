package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = filepath.Clean(dir)

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			body, err := yaml.Marshal(defaultConfig(dir))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, body, 0o600); err != nil {
				return err
			}

			fmt.Printf("initialized %s\n", cfgPath)
			return nil
		},
	}
}

func defaultConfig(dir string) map[string]any {
	return map[string]any{
		"telegram": map[string]any{
			"bot_token": "",
			"channel":   "@your_channel",
			"admin_ids": []string{},
		},
		"llm": map[string]any{
			"endpoint": "https://api.openai.com",
			"api_key":  "",
			"model":    "gpt-4o",
		},
		"store": map[string]any{
			"driver":      "sqlite",
			"sqlite_path": filepath.Join(dir, "kanalbot.db"),
		},
		"settings": map[string]any{
			"path": filepath.Join(dir, "kanalbot_settings.json"),
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}
