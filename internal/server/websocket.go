package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/tutorial"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from the same binary; no cross-site auth to protect
	},
}

// Terminal message types.
const (
	msgExec    = "exec"
	msgSubmit  = "submit"
	msgStart   = "start"
	msgReset   = "reset"
	msgReady   = "ready"
	msgResult  = "result"
	msgVerdict = "verdict"
	msgStep    = "step"
	msgStatus  = "status"
	msgError   = "error"
)

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string                  `json:"type"`
	Session string                  `json:"session,omitempty"`
	Cwd     string                  `json:"cwd,omitempty"`
	Outcome *engine.Outcome         `json:"outcome,omitempty"`
	Verdict *engine.TutorialOutcome `json:"verdict,omitempty"`
	Step    *tutorial.Step          `json:"step,omitempty"`
	Status  *tutorial.Status        `json:"status,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ts := s.sessions.Add(conn)
	defer s.sessions.Remove(ts.ID)
	log := s.logger.With("session", ts.ID)
	log.Info("terminal connected", "remote", r.RemoteAddr)

	s.send(ts, wsOutgoing{Type: msgReady, Session: ts.ID, Cwd: s.engine.Workspace().Rel()})

	// Read loop; messages are handled one at a time per session.
	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("terminal disconnected")
				return
			}
			log.Debug("websocket read ended", "error", err)
			return
		}
		s.send(ts, s.handleTerminalMessage(r, msg))
	}
}

func (s *Server) handleTerminalMessage(r *http.Request, msg wsIncoming) wsOutgoing {
	inv := engine.Invocation{Command: msg.Command, Timeout: msg.Timeout}

	switch strings.ToLower(msg.Type) {
	case msgExec:
		if err := inv.Validate(s.engine.Policy()); err != nil {
			return wsOutgoing{Type: msgError, Error: err.Error()}
		}
		out := s.engine.RunFree(r.Context(), inv)
		return wsOutgoing{Type: msgResult, Outcome: &out, Cwd: s.engine.Workspace().Rel()}

	case msgSubmit:
		if err := inv.Validate(s.engine.Policy()); err != nil {
			return wsOutgoing{Type: msgError, Error: err.Error()}
		}
		res := s.engine.TutorialSubmit(r.Context(), inv)
		return wsOutgoing{Type: msgVerdict, Verdict: &res, Cwd: s.engine.Workspace().Rel()}

	case msgStart:
		step := s.engine.TutorialStart()
		return wsOutgoing{Type: msgStep, Step: &step}

	case msgReset:
		s.engine.TutorialReset()
		st := s.engine.Tutorial().Status()
		return wsOutgoing{Type: msgStatus, Status: &st}
	}
	return wsOutgoing{Type: msgError, Error: "invalid message type: " + msg.Type}
}

func (s *Server) send(ts *TerminalSession, v wsOutgoing) {
	if err := ts.WriteJSON(v); err != nil {
		s.logger.Debug("websocket write failed", "session", ts.ID, "error", err)
	}
}
