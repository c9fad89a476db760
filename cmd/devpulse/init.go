package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/config"
	"github.com/steveyegge/devpulse/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize devpulse in the current directory",
	Long: `Initialize devpulse by writing a default config file and creating the database.

This creates:
  - .devpulse/config.yaml (every setting at its default value)
  - .devpulse/devpulse.db (SQLite database)

An existing config file is left alone unless --force is given.

Example:
  cd ~/myproject
  devpulse init
  devpulse init --force            # Overwrite config.yaml with defaults`,
	Annotations: map[string]string{annotationNoStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		wroteConfig := true
		if err := config.WriteDefault(configPath, force); err != nil {
			if !errors.Is(err, os.ErrExist) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			wroteConfig = false
		}

		dbPath := cfg.Database.Path
		if dbPath == storage.DefaultPath {
			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
				os.Exit(1)
			}
			dbPath, err = storage.InitProject(cwd, "")
			if err != nil && !errors.Is(err, os.ErrExist) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		// Initialize the database schema by opening and closing it
		ctx := context.Background()
		db, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		_ = db.Close() // Ignore close error during initialization

		fmt.Printf("\n%s Initialized devpulse\n\n", green("✓"))
		if wroteConfig {
			fmt.Printf("  Config:   %s\n", cyan(configPath))
		} else {
			fmt.Printf("  Config:   %s %s\n", cyan(configPath), yellow("(kept existing, use --force to overwrite)"))
		}
		fmt.Printf("  Database: %s\n", cyan(dbPath))
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  devpulse import --repo .        # Copy commit history into the database")
		fmt.Println("  devpulse discover --from 90d    # Mine patterns and synthesize insights")
		fmt.Println()
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
