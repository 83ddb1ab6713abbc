//go:build !windows

package main

import (
	"errors"

	"smartclip/internal/config"
	"smartclip/internal/logging"
)

func runTray(*config.Config, *logging.Logger) error {
	return errors.New("the tray is only supported on Windows; use smartclip-gui or smartclipctl")
}
