package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Dosada05/ralli/config"
	"github.com/Dosada05/ralli/db"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func importCmd() *cobra.Command {
	var organizerID string

	cmd := &cobra.Command{
		Use:   "import <race.yaml>",
		Short: "Create a race and its waypoints from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(organizerID); err != nil {
				return fmt.Errorf("--organizer must be an organizer id: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			input, err := decodeRace(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			raceService := services.NewRaceService(
				repositories.NewPostgresRaceRepository(dbConn),
				repositories.NewPostgresWaypointRepository(dbConn),
				repositories.NewPostgresTeamRepository(dbConn),
				repositories.NewPostgresTxManager(dbConn, logger),
				nil,
				logger,
			)

			race, err := raceService.CreateRace(cmd.Context(), organizerID, *input)
			if err != nil {
				return err
			}
			logger.Info("race imported",
				slog.String("race_id", race.ID),
				slog.String("code", race.ShortCode),
				slog.Int("waypoints", len(input.Waypoints)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", race.ID, race.ShortCode, race.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&organizerID, "organizer", "", "Id of the organizer owning the race")
	_ = cmd.MarkFlagRequired("organizer")
	return cmd
}

// decodeRace reads a race definition. Unknown keys are rejected so typos in
// field names do not silently drop data.
func decodeRace(r io.Reader) (*services.CreateRaceInput, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var input services.CreateRaceInput
	if err := dec.Decode(&input); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("race file is empty")
		}
		return nil, fmt.Errorf("decode race: %w", err)
	}
	return &input, nil
}
