package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/coffeehunt/internal/tracking"

	"github.com/spf13/cobra"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List available cameras",
	Long:  `List the video capture devices that can be used as back_device and front_device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cameras, err := tracking.ListCameras()
		if err != nil {
			return err
		}

		fmt.Printf("📷 Cameras (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 VIDEO DEVICES (%d found):\n", len(cameras))
		for i, camera := range cameras {
			fmt.Printf("  %d. %s\n", i+1, camera.Name)
			for _, device := range camera.Devices {
				fmt.Printf("       %s\n", device)
			}
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • Configure tracking.back_device and tracking.front_device\n")
		fmt.Printf("  • Example: back_device: /dev/video0\n\n")

		return nil
	},
}
