package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dosada05/ralli/config"
	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/player"
	"github.com/spf13/cobra"
)

type playEnv struct {
	tokens  *player.FileTokenStore
	session *player.Session
	raceID  string
}

func defaultTokenFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "ralli", "tokens.json"), nil
}

func playCmd() *cobra.Command {
	var (
		raceID  string
		lat     float64
		lng     float64
		acc     float64
		verbose bool
	)

	setup := func(locator player.Locator) (*playEnv, error) {
		baseURL, tokenFile := config.LoadClient()
		if tokenFile == "" {
			var err error
			if tokenFile, err = defaultTokenFile(); err != nil {
				return nil, err
			}
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		tokens := player.NewFileTokenStore(tokenFile)
		env := &playEnv{
			tokens:  tokens,
			session: player.NewSession(player.NewAPIClient(baseURL, logger), tokens, locator, logger),
			raceID:  raceID,
		}
		if env.raceID == "" {
			current, err := tokens.Current()
			if err != nil {
				return nil, err
			}
			env.raceID = current
		}
		return env, nil
	}

	// resume loads the stored session for the selected race.
	resume := func(cmd *cobra.Command, locator player.Locator) (*playEnv, error) {
		env, err := setup(locator)
		if err != nil {
			return nil, err
		}
		if env.raceID == "" {
			return nil, errors.New("no race joined yet, run 'ralli play join <code> <team>' first")
		}
		if _, err := env.session.Load(cmd.Context(), env.raceID); err != nil {
			if errors.Is(err, player.ErrNotJoined) {
				return nil, fmt.Errorf("%w: join the race again", err)
			}
			return nil, err
		}
		return env, nil
	}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a race from this device",
	}
	cmd.PersistentFlags().StringVar(&raceID, "race", "", "Race id (defaults to the race joined last)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log client activity to stderr")

	cmd.AddCommand(&cobra.Command{
		Use:   "join <code> <team name>",
		Short: "Join a race with its code",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(player.StaticLocator{})
			if err != nil {
				return err
			}
			view, err := env.session.Join(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current waypoint and score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resume(cmd, player.StaticLocator{})
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), env.session.View())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "teams",
		Short: "List the teams in the race",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resume(cmd, player.StaticLocator{})
			if err != nil {
				return err
			}
			teams, err := env.session.Teams(cmd.Context())
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), teams)
			return nil
		},
	})

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the current position against the waypoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fix := geofence.Fix{Point: geofence.Point{Lat: lat, Lng: lng}, Accuracy: acc}
			env, err := resume(cmd, player.StaticLocator{Fix: fix})
			if err != nil {
				return err
			}
			res, err := env.session.Verify(cmd.Context())
			if err != nil {
				return sensorError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			printView(cmd.OutOrStdout(), env.session.View())
			return nil
		},
	}
	verify.Flags().Float64Var(&lat, "lat", 0, "Latitude in degrees")
	verify.Flags().Float64Var(&lng, "lng", 0, "Longitude in degrees")
	verify.Flags().Float64Var(&acc, "accuracy", 10, "Fix accuracy in meters")
	_ = verify.MarkFlagRequired("lat")
	_ = verify.MarkFlagRequired("lng")
	cmd.AddCommand(verify)

	cmd.AddCommand(&cobra.Command{
		Use:   "hint",
		Short: "Reveal the hint of the current waypoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resume(cmd, player.StaticLocator{})
			if err != nil {
				return err
			}
			res, err := env.session.RequestHint(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Hint: %s\n", res.Hint)
			if res.Charged {
				fmt.Fprintf(cmd.OutOrStdout(), "Score is now %d\n", res.Score)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "submit <photo>",
		Short: "Upload the proof photo for the current waypoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resume(cmd, player.StaticLocator{})
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := env.session.Submit(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s, waiting for review\n", p.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Follow review decisions until the race is finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resume(cmd, player.StaticLocator{})
			if err != nil {
				return err
			}
			return env.session.Watch(cmd.Context(), func(v *models.GameView) {
				printView(cmd.OutOrStdout(), v)
			})
		},
	})

	return cmd
}

func printRoster(w io.Writer, teams []models.RosterEntry) {
	fmt.Fprintf(w, "%d teams joined\n", len(teams))
	for i, t := range teams {
		marker := ""
		if t.Self {
			marker = " (you)"
		}
		fmt.Fprintf(w, "%2d. %s%s\n", i+1, t.Name, marker)
	}
}

// sensorError tells the player how to recover from a failed position
// reading. Other errors pass through unchanged.
func sensorError(err error) error {
	switch {
	case errors.Is(err, player.ErrPermissionDenied):
		return fmt.Errorf("%w: allow location access for this device and try again", err)
	case errors.Is(err, player.ErrLocationTimeout):
		return fmt.Errorf("%w: move under open sky and try again", err)
	}
	return err
}

func printView(w io.Writer, v *models.GameView) {
	if v == nil {
		return
	}
	fmt.Fprintf(w, "Team %s | score %d | step %d/%d | %s\n",
		v.Team.Name, v.Team.Score, min(v.Team.CurrentStepIndex+1, v.TotalWaypoints), v.TotalWaypoints, v.State)

	switch {
	case v.Finished():
		fmt.Fprintln(w, "Race complete!")
		return
	case v.RaceStatus != models.RaceStatusActive:
		fmt.Fprintln(w, "Waiting for the organizer to start the race.")
		return
	}

	if wp := v.Waypoint; wp != nil {
		fmt.Fprintf(w, "Riddle: %s\n", wp.Riddle)
		if wp.TaskInstruction != "" {
			fmt.Fprintf(w, "Task: %s\n", wp.TaskInstruction)
		}
		if wp.Hint != nil && *wp.Hint != "" {
			fmt.Fprintf(w, "Hint: %s\n", *wp.Hint)
		}
	}
	if v.RejectionReason != nil {
		fmt.Fprintf(w, "Rejected: %s\n", *v.RejectionReason)
	}
}
