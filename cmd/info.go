package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/coffeehunt/internal/overlay"
	"github.com/audiolibrelab/coffeehunt/internal/platform"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and asset checks",
	Long:  `Display the resolved configuration of the active profile and check that the image target, the overlay model and the cameras it points at are usable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("=== PROFILE ===\n")
		fmt.Printf("profile: %s\n", cfg.Profile)

		fmt.Printf("\n=== ASSETS ===\n")
		fmt.Printf("target_file: %s %s\n", cfg.Tracking.TargetFile, fileCheck(cfg.Tracking.TargetFile))
		fmt.Printf("model_file: %s %s\n", cfg.Overlay.ModelFile, modelCheck(cfg.Overlay.ModelFile))
		fmt.Printf("back_device: %s %s\n", cfg.Tracking.BackDevice, fileCheck(cfg.Tracking.BackDevice))
		fmt.Printf("front_device: %s %s\n", cfg.Tracking.FrontDevice, fileCheck(cfg.Tracking.FrontDevice))

		fmt.Printf("\n=== TRACKING ===\n")
		fmt.Printf("command: %s\n", strings.Join(cfg.Tracking.Command, " "))
		fmt.Printf("facing: %s\n", cfg.Tracking.Facing)
		fmt.Printf("frame_rate: %d\n", cfg.Tracking.FrameRate)

		fmt.Printf("\n=== RECORDING ===\n")
		fmt.Printf("auto_start: %t\n", cfg.Recording.AutoStartEnabled())
		fmt.Printf("codec: %s\n", cfg.Recording.Codec)
		fmt.Printf("media_type: %s\n", cfg.Recording.MediaType)

		fmt.Printf("\n=== SHARE ===\n")
		fmt.Printf("title: %s\n", cfg.Share.Title)
		if len(cfg.Share.Command) > 0 {
			fmt.Printf("command: %s\n", strings.Join(cfg.Share.Command, " "))
		} else {
			fmt.Printf("command: (none, sharing unsupported)\n")
		}
		fmt.Printf("download_path: %s\n", filepath.Join(cfg.Share.DownloadDirectory, platform.CleanFileName(cfg.Share.Filename)))

		fmt.Printf("\n=== SERVER ===\n")
		fmt.Printf("port: %s\n", cfg.Server.Port)
		fmt.Printf("public_url: %s\n", cfg.Server.PublicURL)
		fmt.Printf("intent_rate: %.1f/s (burst %d)\n", cfg.Server.IntentRate, cfg.Server.IntentBurst)

		return nil
	},
}

func fileCheck(path string) string {
	if path == "" {
		return "(not set)"
	}
	if _, err := os.Stat(path); err != nil {
		return "(missing)"
	}
	return "(ok)"
}

func modelCheck(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "(missing)"
	}
	if _, err := (overlay.FileLoader{}).Load(context.Background(), path); err != nil {
		return fmt.Sprintf("(invalid: %v)", err)
	}
	return "(ok)"
}
