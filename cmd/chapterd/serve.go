package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/chapterd/internal/config"
	"github.com/joss/chapterd/internal/orchestrator"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/retry"
	"github.com/joss/chapterd/internal/runtime"
	"github.com/joss/chapterd/internal/server"
	"github.com/joss/chapterd/internal/session"
	"github.com/joss/chapterd/internal/settings"
	"github.com/joss/chapterd/internal/tabs"
)

func serveCmd() *cobra.Command {
	var addr string
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chapterd daemon",
		Long: `Run the daemon: launches the browser, starts the generation
orchestrator, and serves the local HTTP API the popup and results surfaces
talk to.`,
		Run: func(cmd *cobra.Command, args []string) {
			env := config.Env()
			if !cmd.Flags().Changed("addr") {
				addr = env.Addr
			}
			if !cmd.Flags().Changed("headless") {
				headless = env.Headless
			}

			store, err := settings.Open(config.GetPaths().Data)
			exitOnError(err)

			platform, err := tabs.LaunchRodPlatform(headless)
			exitOnError(err)

			calls := retry.New(nil)
			selector := provider.NewSelector(calls, keysFrom(store))
			registry := tabs.NewRegistry(platform, tabs.NewClassifier(env.VideoPatterns))
			orch := orchestrator.New(session.NewStore(), registry, calls, selector, env.ResultsURL)

			srv := server.New(orch, store, addr)
			srv.OnSettingsChanged = func() {
				selector.SetKeys(keysFrom(store))
			}

			shutdown := runtime.Global()
			shutdown.RegisterSimple("calls", orch.Shutdown)
			shutdown.RegisterSimple("browser", platform.Close)
			shutdown.Register("settings", func(ctx context.Context) error {
				return store.Close()
			})
			shutdown.ListenForSignals()

			fmt.Printf("chapterd listening on %s\n", addr)
			err = srv.Serve(shutdown.Context())
			shutdown.Shutdown()
			shutdown.WaitForShutdown()
			exitOnError(err)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8972", "HTTP listen address")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	return cmd
}

// keysFrom builds credential slots, preferring the settings store and
// falling back to the environment.
func keysFrom(store *settings.Store) provider.Keys {
	env := config.Env()
	return provider.Keys{
		Gemini:     store.GetDefault(settings.KeyGeminiAPIKey, env.GeminiKey),
		OpenRouter: store.GetDefault(settings.KeyOpenRouterAPIKey, env.OpenRouterKey),
	}
}
