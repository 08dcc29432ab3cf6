package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/paxxium/internal/config"
)

const defaultCommandTimeout = 5 * time.Second

// Command returns a handler that runs a shell command with the payload as
// JSON on stdin. The command is killed after timeout.
func Command(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "PAXXIUM_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w: %s", command, err, msg)
			}
			return fmt.Errorf("%s: %w", command, err)
		}
		return nil
	}
}

// RegisterConfig registers the command hooks from the config file and
// returns how many were added.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	groups := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventMessageReceived, cfg.MessageReceived},
		{EventMessagePersisted, cfg.MessagePersisted},
		{EventGatewayStart, cfg.GatewayStart},
		{EventGatewayStop, cfg.GatewayStop},
	}

	n := 0
	for _, g := range groups {
		for i, e := range g.entries {
			if strings.TrimSpace(e.Command) == "" {
				continue
			}
			name := fmt.Sprintf("config.%s.%d", g.event, i)
			m.On(g.event, name, Command(e.Command, time.Duration(e.Timeout)*time.Millisecond))
			n++
		}
	}
	return n
}
