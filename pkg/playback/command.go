package playback

import (
	"encoding/json"
	"fmt"
)

// CommandKind names a control command.
type CommandKind string

const (
	CmdPredict     CommandKind = "predict"
	CmdPause       CommandKind = "pause"
	CmdResume      CommandKind = "resume"
	CmdTogglePause CommandKind = "toggle_pause"
	CmdStop        CommandKind = "stop"
)

// Command is a control request, as sent by the dashboard.
type Command struct {
	Kind    CommandKind `json:"command"`
	Seconds int         `json:"seconds,omitempty"`
}

// ParseCommand decodes a JSON command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("playback: decode command: %w", err)
	}
	switch cmd.Kind {
	case CmdPredict, CmdPause, CmdResume, CmdTogglePause, CmdStop:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("playback: unknown command %q", cmd.Kind)
	}
}

// Apply executes cmd against the controller.
func (c *Controller) Apply(cmd Command) error {
	switch cmd.Kind {
	case CmdPredict:
		return c.StartPredicting(cmd.Seconds)
	case CmdPause:
		c.SetPaused(true)
	case CmdResume:
		c.SetPaused(false)
	case CmdTogglePause:
		c.TogglePause()
	case CmdStop:
		c.Stop()
	default:
		return fmt.Errorf("playback: unknown command %q", cmd.Kind)
	}
	return nil
}

// Submit queues cmd for the Run loop without blocking.
func (c *Controller) Submit(cmd Command) error {
	if c.Status().Ended {
		return ErrSessionEnded
	}
	select {
	case c.commands <- cmd:
		return nil
	default:
		return ErrBusy
	}
}
