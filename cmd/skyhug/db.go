package main

import (
	"fmt"
	"os"

	"github.com/Skyhug-AI/skyhug-backend/internal/config"
	"github.com/Skyhug-AI/skyhug-backend/internal/db"
	"github.com/Skyhug-AI/skyhug-backend/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database and migrate all tables",
		Long:  "Creates the MySQL database if it does not exist (sqlite needs no setup), then migrates every table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Skyhug config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Database)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed <personas.yaml>",
		Short: "Upsert therapist personas from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Skyhug config file")
	return cmd
}

// persona is the YAML shape of one therapist entry in a seed file.
type persona struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Bio              string   `yaml:"bio"`
	Approach         string   `yaml:"approach"`
	SessionStructure string   `yaml:"session_structure"`
	Specialties      []string `yaml:"specialties"`
	SystemPrompt     string   `yaml:"system_prompt"`
	VoiceID          string   `yaml:"voice_id"`
}

type personaFile struct {
	Therapists []persona `yaml:"therapists"`
}

func parsePersonas(data []byte) ([]models.Therapist, error) {
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	therapists := make([]models.Therapist, 0, len(f.Therapists))
	for i, p := range f.Therapists {
		if p.ID == "" {
			return nil, fmt.Errorf("parse personas: therapist %d has no id", i)
		}
		therapists = append(therapists, models.Therapist{
			ID:                p.ID,
			Name:              p.Name,
			Description:       p.Description,
			Bio:               p.Bio,
			Approach:          p.Approach,
			SessionStructure:  p.SessionStructure,
			Specialties:       datatypes.JSONSlice[string](p.Specialties),
			SystemPrompt:      p.SystemPrompt,
			ElevenLabsVoiceID: p.VoiceID,
		})
	}
	return therapists, nil
}

func runDBSeed(cmd *cobra.Command, configPath, personasPath string) error {
	data, err := os.ReadFile(personasPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", personasPath, err)
	}
	therapists, err := parsePersonas(data)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.SeedTherapists(gormDB, therapists); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d therapists\n", len(therapists))
	return nil
}
