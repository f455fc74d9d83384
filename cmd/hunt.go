package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/coffeehunt/internal/platform"
	"github.com/audiolibrelab/coffeehunt/internal/service"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"

	"github.com/spf13/cobra"
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Play one round in the terminal",
	Long: `Start a round without the web UI. The round ends when the marker is
found or on Ctrl+C. Use --save to keep the clip and --play to watch it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		facingFlag, _ := cmd.Flags().GetString("facing")
		save, _ := cmd.Flags().GetBool("save")
		play, _ := cmd.Flags().GetBool("play")

		facing := tracking.Facing(cfg.Tracking.Facing)
		if facingFlag != "" {
			parsed, err := tracking.ParseFacing(facingFlag)
			if err != nil {
				return err
			}
			facing = parsed
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.NewDefault(cfg)
		updates, unsubscribe := svc.Subscribe()
		defer unsubscribe()

		fmt.Printf("Starting hunt with %s camera...\n", facing)
		if err := svc.Start(ctx, facing); err != nil {
			return err
		}
		fmt.Println("Find the coffee mug! Press Ctrl+C to give up.")

		won := false
		for !won {
			select {
			case st := <-updates:
				if st.Win != nil {
					fmt.Printf("\n%s\n%s\n\n", st.Win.Title, st.Win.Message)
					won = true
				}
			case <-ctx.Done():
				fmt.Println("\nStopping hunt...")
				won = true
			}
		}

		if err := svc.Stop(context.Background()); err != nil {
			return fmt.Errorf("failed to stop session: %w", err)
		}

		if !save && !play {
			return nil
		}

		path, notice := svc.DownloadArtifact(context.Background())
		if notice != "" {
			fmt.Println(notice)
			return nil
		}
		fmt.Printf("Saved recording to %s\n", path)

		if play {
			if err := platform.NewPlayer().Play(context.Background(), path); err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
		}
		return nil
	},
}

func init() {
	huntCmd.Flags().StringP("facing", "f", "", "camera to use: back or front (overrides config)")
	huntCmd.Flags().BoolP("save", "s", false, "save the recording to the download directory")
	huntCmd.Flags().BoolP("play", "p", false, "save and play the recording when the round ends")
}
