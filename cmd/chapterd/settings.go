package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/chapterd/internal/config"
	"github.com/joss/chapterd/internal/render"
	"github.com/joss/chapterd/internal/settings"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage API keys, default model, and instruction presets",
	}

	cmd.AddCommand(settingsListCmd())
	cmd.AddCommand(settingsGetCmd())
	cmd.AddCommand(settingsSetCmd())
	cmd.AddCommand(settingsUnsetCmd())
	cmd.AddCommand(presetCmd())
	return cmd
}

func openSettings() *settings.Store {
	store, err := settings.Open(config.GetPaths().Data)
	exitOnError(err)
	return store
}

func settingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored settings (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			keys, err := store.Keys()
			exitOnError(err)

			pairs := make(map[string]string, len(keys))
			for _, k := range keys {
				v, err := store.Get(k)
				exitOnError(err)
				pairs[k] = v
			}
			fmt.Print(render.New(pretty).Settings(pairs))
		},
	}
}

func settingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			value, err := store.Get(args[0])
			exitOnError(err)
			fmt.Println(value)
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			exitOnError(store.Set(args[0], args[1]))
		},
	}
}

func settingsUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			exitOnError(store.Delete(args[0]))
		},
	}
}

func presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved instruction presets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Run: func(c *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			presets, err := store.ListPresets()
			exitOnError(err)
			fmt.Print(render.New(pretty).Presets(presets))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <instructions>",
		Short: "Save an instructions preset",
		Args:  cobra.ExactArgs(2),
		Run: func(c *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			exitOnError(store.SavePreset(settings.Preset{
				Name:         args[0],
				Instructions: args[1],
			}))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			store := openSettings()
			defer store.Close()

			exitOnError(store.DeletePreset(args[0]))
		},
	})

	return cmd
}
