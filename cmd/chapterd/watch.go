package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/joss/chapterd/internal/config"
	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/poller"
	"github.com/joss/chapterd/internal/render"
	"github.com/joss/chapterd/internal/tui"
)

func watchCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a generation session until it finishes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("addr") {
				addr = config.Env().Addr
			}
			sessionID := args[0]
			client := &daemonClient{base: "http://" + addr}

			p := poller.New(client.status)
			model := tui.NewWatch(p, sessionID, client.session)

			final, err := tea.NewProgram(model).Run()
			exitOnError(err)

			m := final.(tui.WatchModel)
			exitOnError(m.Err())

			sess := m.Session()
			if sess == nil {
				return
			}

			r := render.New(pretty)
			if sess.Status == domain.StatusError {
				fmt.Fprint(os.Stderr, r.Failure(sess))
				os.Exit(1)
			}
			fmt.Print(r.Chapters(sess))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8972", "Daemon address")
	return cmd
}

// daemonClient reads session state from the running daemon.
type daemonClient struct {
	base string
}

func (c *daemonClient) status(id string) (domain.Status, error) {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.get("/sessions/"+id+"/status", &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%s", resp.Error)
	}
	return domain.Status(resp.Status), nil
}

func (c *daemonClient) session(id string) (*domain.GenerationSession, error) {
	var resp struct {
		SessionID  string `json:"sessionId"`
		Status     string `json:"status"`
		VideoURL   string `json:"videoUrl"`
		VideoTitle string `json:"videoTitle"`
		Model      string `json:"model"`
		Result     string `json:"result"`
		Error      string `json:"error"`
		Category   string `json:"category"`
	}
	if err := c.get("/sessions/"+id+"/results", &resp); err != nil {
		return nil, err
	}
	return &domain.GenerationSession{
		ID:            resp.SessionID,
		Status:        domain.Status(resp.Status),
		VideoURL:      resp.VideoURL,
		VideoTitle:    resp.VideoTitle,
		Model:         resp.Model,
		Result:        resp.Result,
		ErrorMessage:  resp.Error,
		ErrorCategory: domain.ErrorCategory(resp.Category),
	}, nil
}

func (c *daemonClient) get(path string, out interface{}) error {
	resp, err := http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		var payload struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error != "" {
			return fmt.Errorf("%s", payload.Error)
		}
		return fmt.Errorf("not found: %s", path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
