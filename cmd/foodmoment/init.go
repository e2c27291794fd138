package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZhaoChaoqun/foodmoment/internal/config"
	"github.com/ZhaoChaoqun/foodmoment/internal/db"
	"github.com/ZhaoChaoqun/foodmoment/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "maint",
	Short:   "Create the config file and the local store",
	Long: `Write a starter config file and create the local store.

An existing config file is left alone unless --force is given. The store is
created or migrated to the current schema either way. Secrets (api.token,
classify.anthropic_api_key) are not written; set them in the environment or
a .env file (FOODMOMENT_API_TOKEN, ANTHROPIC_API_KEY).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if url, _ := cmd.Flags().GetString("api-url"); url != "" {
			cfg.API.URL = url
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}

		w := cmd.OutOrStdout()
		_, err := os.Stat(path)
		switch {
		case err == nil && !force:
			fmt.Fprintf(w, "%s Config exists at %s (use --force to overwrite)\n", ui.RenderMuted("•"), path)
		case err == nil || errors.Is(err, os.ErrNotExist):
			if err := config.WriteFile(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s Wrote config to %s\n", ui.RenderPass("✓"), path)
		default:
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.InitSchemaContext(cmd.Context()); err != nil {
			return err
		}
		version, err := store.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s Initialized store at %s (schema v%d)\n", ui.RenderPass("✓"), cfg.DBPath, version)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().String("api-url", "", "Backend base URL to write into the config")
	rootCmd.AddCommand(initCmd)
}
