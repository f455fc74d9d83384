package tracking

import (
	"fmt"
	"os/exec"
	"strings"
)

// Camera is a capture device group as reported by v4l2-ctl
type Camera struct {
	Name    string   `json:"name"`
	Devices []string `json:"devices"`
}

// ListCameras returns the video devices available on this host
func ListCameras() ([]Camera, error) {
	cmd := exec.Command("v4l2-ctl", "--list-devices")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}
	return parseCameraList(string(output)), nil
}

// parseCameraList parses v4l2-ctl output: an unindented name line followed by
// indented device paths
func parseCameraList(output string) []Camera {
	var cameras []Camera
	var current *Camera

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if current != nil {
				current.Devices = append(current.Devices, strings.TrimSpace(line))
			}
			continue
		}
		cameras = append(cameras, Camera{Name: strings.TrimSuffix(strings.TrimSpace(line), ":")})
		current = &cameras[len(cameras)-1]
	}

	return cameras
}
