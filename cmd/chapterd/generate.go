package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/chapterd/internal/config"
	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/orchestrator"
	"github.com/joss/chapterd/internal/poller"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/render"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/internal/session"
	"github.com/joss/chapterd/internal/settings"
	"github.com/joss/chapterd/internal/tabs"
	"github.com/joss/chapterd/internal/transcript"
)

func generateCmd() *cobra.Command {
	var (
		transcriptPath string
		videoURL       string
		model          string
		instructions   string
		preset         string
		scrape         bool
		headless       bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate chapters from a transcript (one-shot)",
		Long: `One-shot generation without the daemon: reads the transcript from a
file (or scrapes it from the video page with --scrape), sends it to the
selected model, and prints the chapters.`,
		Run: func(cmd *cobra.Command, args []string) {
			env := config.Env()

			store, err := settings.Open(config.GetPaths().Data)
			exitOnError(err)
			defer store.Close()

			if model == "" {
				model = store.GetDefault(settings.KeyDefaultModel, env.Model)
			}
			if preset != "" {
				p, err := store.GetPreset(preset)
				exitOnError(err)
				instructions = p.Instructions
			}

			source, cleanup, err := transcriptSource(transcriptPath, scrape, headless)
			exitOnError(err)
			defer cleanup()

			ctx := context.Background()
			text, err := source.Fetch(ctx, videoURL)
			exitOnError(err)

			calls := retry.New(nil)
			orch := orchestrator.New(
				session.NewStore(),
				tabs.NewRegistry(noTabs{}, nil),
				calls,
				provider.NewSelector(calls, keysFrom(store)),
				env.ResultsURL,
			)

			id, err := orch.Generate(ctx, orchestrator.GenerateRequest{
				VideoURL:           videoURL,
				Transcript:         text,
				Model:              model,
				CustomInstructions: instructions,
			})
			exitOnError(err)

			p := poller.New(orch.Status)
			p.Interval = 250 * time.Millisecond // local call, no need to wait 2s
			u, err := p.Wait(ctx, id)
			exitOnError(err)

			sess, err := orch.Session(u.SessionID)
			exitOnError(err)

			r := render.New(pretty)
			if sess.Status == domain.StatusError {
				fmt.Fprint(os.Stderr, r.Failure(sess))
				os.Exit(1)
			}
			fmt.Print(r.Chapters(sess))
		},
	}

	cmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Transcript file path (- for stdin)")
	cmd.Flags().StringVarP(&videoURL, "url", "u", "", "Video URL")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model identifier")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "Custom instructions")
	cmd.Flags().StringVar(&preset, "preset", "", "Use a saved instructions preset")
	cmd.Flags().BoolVar(&scrape, "scrape", false, "Scrape the transcript from the video page")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the scraping browser headless")
	return cmd
}

// transcriptSource picks the file/stdin source or the browser scraper.
func transcriptSource(path string, scrape, headless bool) (transcript.Source, func(), error) {
	noop := func() {}

	if scrape {
		platform, err := tabs.LaunchRodPlatform(headless)
		if err != nil {
			return nil, noop, err
		}
		return transcript.NewRodSource(platform.Browser(), 0), platform.Close, nil
	}

	if path == "" {
		return nil, noop, fmt.Errorf("either --transcript or --scrape is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, noop, fmt.Errorf("read transcript: %w", err)
	}
	return &transcript.Static{Text: string(data)}, noop, nil
}

// noTabs is the tab surface for one-shot runs: no browser, nothing to focus.
type noTabs struct{}

func (noTabs) Get(ctx context.Context, id int) (domain.TabInfo, error) {
	return domain.TabInfo{}, tabs.ErrNoTab
}

func (noTabs) Query(ctx context.Context) ([]domain.TabInfo, error) { return nil, nil }

func (noTabs) Create(ctx context.Context, url string, active bool) (domain.TabInfo, error) {
	return domain.TabInfo{}, tabs.ErrNoTab
}

func (noTabs) Activate(ctx context.Context, id int) error    { return tabs.ErrNoTab }
func (noTabs) FocusWindow(ctx context.Context, id int) error { return tabs.ErrNoTab }

var _ tabs.Platform = noTabs{}
