package main

import (
	"fmt"

	"smartclip/internal/ipc"
)

// statusTip is the tooltip and the first, disabled menu line.
func statusTip(s *ipc.StatusResponse, err error) string {
	switch {
	case err != nil:
		return "smartclip: daemon not running"
	case s.PrivateMode:
		return fmt.Sprintf("smartclip: private mode (%d clips)", s.ClipCount)
	case !s.Capturing:
		return "smartclip: paused"
	default:
		return fmt.Sprintf("smartclip: %d clips", s.ClipCount)
	}
}
