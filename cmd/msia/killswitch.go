package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepeccz/msi-a-sub001/internal/settings"
)

// settingsClientTimeout bounds each PUT /settings call.
const settingsClientTimeout = 10 * time.Second

// settingWriter writes operator settings either through a running server, which
// invalidates its cache at once, or straight to the store.
type settingWriter struct {
	root   *rootFlags
	server string
}

func (w settingWriter) write(ctx context.Context, pairs ...[2]string) error {
	if w.server != "" {
		for _, kv := range pairs {
			if err := putSetting(ctx, w.server, kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	}
	st, err := openStore(w.root)
	if err != nil {
		return err
	}
	defer st.Close()
	for _, kv := range pairs {
		if err := st.SetSetting(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (w settingWriter) note() string {
	if w.server != "" {
		return "applied by " + w.server
	}
	return "running servers apply it within SETTINGS_CACHE_TTL; use --server for an immediate change"
}

// putSetting calls PUT {server}/settings/{key}.
func putSetting(ctx context.Context, server, key, value string) error {
	body, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(server, "/") + "/settings/" + url.PathEscape(key)
	ctx, cancel := context.WithTimeout(ctx, settingsClientTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build settings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("update setting %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update setting %s: server answered %s", key, resp.Status)
	}
	return nil
}

func newKillSwitchCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "killswitch",
		Short: "Turn the automated agent off or on for every conversation",
		Long: "While the kill switch is on, every inbound message gets the auto-reply and the conversation is escalated to a human.\n\n" +
			"With --server the change goes through the running server's settings endpoint and applies immediately. " +
			"Without it the store is written directly and running servers pick the change up within SETTINGS_CACHE_TTL.",
	}

	cmd.AddCommand(newKillSwitchOnCmd(root))
	cmd.AddCommand(newKillSwitchOffCmd(root))
	cmd.AddCommand(newKillSwitchStatusCmd(root))
	return cmd
}

func newKillSwitchOnCmd(root *rootFlags) *cobra.Command {
	var message string
	w := settingWriter{root: root}

	cmd := &cobra.Command{
		Use:   "on",
		Short: "Disable the agent and auto-reply to every customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pairs [][2]string
			if message != "" {
				pairs = append(pairs, [2]string{settings.KeyAgentDisabledMessage, message})
			}
			pairs = append(pairs, [2]string{settings.KeyAgentEnabled, "false"})
			if err := w.write(cmd.Context(), pairs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kill switch ON: agent disabled (%s)\n", w.note())
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "auto-reply text sent while the agent is disabled")
	cmd.Flags().StringVar(&w.server, "server", "", "base URL of a running msia server, e.g. http://localhost:8080")
	return cmd
}

func newKillSwitchOffCmd(root *rootFlags) *cobra.Command {
	w := settingWriter{root: root}

	cmd := &cobra.Command{
		Use:   "off",
		Short: "Re-enable the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := w.write(cmd.Context(), [2]string{settings.KeyAgentEnabled, "true"}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kill switch OFF: agent enabled (%s)\n", w.note())
			return nil
		},
	}

	cmd.Flags().StringVar(&w.server, "server", "", "base URL of a running msia server, e.g. http://localhost:8080")
	return cmd
}

func newKillSwitchStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the kill switch state and the auto-reply text",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			p := settings.NewRepoProvider(st)
			state := "OFF"
			if settings.KillSwitchActive(cmd.Context(), p) {
				state = "ON"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kill switch %s\n", state)
			fmt.Fprintf(out, "auto-reply: %s\n", settings.AutoReplyMessage(cmd.Context(), p))
			return nil
		},
	}
}
