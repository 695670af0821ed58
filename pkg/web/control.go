package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-trajectory/pkg/playback"
)

// controlReply answers every message on /ws/control.
type controlReply struct {
	OK      bool              `json:"ok"`
	Command *playback.Command `json:"command,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (s *Server) registerControl(app *fiber.App) {
	app.Get("/ws/control", websocket.New(s.handleControl))
}

// handleControl reads JSON commands such as {"command":"predict","seconds":3}
// and answers each with a controlReply.
func (s *Server) handleControl(c *websocket.Conn) {
	s.logger.Info("control client connected", "remote", c.RemoteAddr().String())
	defer s.logger.Info("control client disconnected")

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		reply := controlReply{OK: true}
		cmd, err := playback.ParseCommand(data)
		if err == nil {
			reply.Command = &cmd
			_, err = s.dispatch(cmd)
		}
		if err != nil {
			reply = controlReply{Command: reply.Command, Error: err.Error()}
		}

		if err := c.WriteJSON(reply); err != nil {
			s.logger.Debug("control write failed", "error", err)
			return
		}
	}
}
