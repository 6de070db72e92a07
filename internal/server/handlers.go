package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// --- Execution handlers ---

// Result formats for /api/exec.
const (
	formatJSON     = "json"
	formatPreview  = "preview"
	formatDownload = "download"
)

func (s *Server) decodeInvocation(w http.ResponseWriter, r *http.Request) (engine.Invocation, bool) {
	var inv engine.Invocation
	if err := decodeJSON(r, &inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return inv, false
	}
	if err := inv.Validate(s.engine.Policy()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return inv, false
	}
	return inv, true
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatJSON
	}
	if format != formatJSON && format != formatPreview && format != formatDownload {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}

	inv, ok := s.decodeInvocation(w, r)
	if !ok {
		return
	}

	out := s.engine.RunFree(r.Context(), inv)

	switch format {
	case formatPreview, formatDownload:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if format == formatDownload {
			name := "result.txt"
			if out.TimedOut {
				name = "timeout.txt"
			}
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(renderText(out)))
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

// renderText is the plain-text form of an outcome. A timeout renders only
// the timeout message.
func renderText(out engine.Outcome) string {
	if out.TimedOut {
		return out.Stderr
	}
	return fmt.Sprintf("exit code: %s\nstdout:\n%s\nstderr:\n%s",
		storage.FormatExitCode(out.ExitCode), out.Stdout, out.Stderr)
}

type cdRequest struct {
	Target string `json:"target"`
}

type cdResponse struct {
	OK      bool   `json:"ok"`
	Cwd     string `json:"cwd"`
	Rel     string `json:"rel"`
	Message string `json:"message"`
}

func (s *Server) handleChangeDir(w http.ResponseWriter, r *http.Request) {
	var req cdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	out := s.engine.ChangeDir(req.Target)
	status := http.StatusOK
	if !out.Succeeded() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, cdResponse{
		OK:      out.Succeeded(),
		Cwd:     out.Cwd,
		Rel:     s.engine.Workspace().Rel(),
		Message: out.Message,
	})
}

func (s *Server) handleCwd(w http.ResponseWriter, r *http.Request) {
	ws := s.engine.Workspace()
	writeJSON(w, http.StatusOK, map[string]string{
		"root": ws.Root(),
		"cwd":  ws.Dir(),
		"rel":  ws.Rel(),
	})
}

func (s *Server) handleSandboxReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SandboxReset(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"cwd":    s.engine.Workspace().Dir(),
	})
}

// --- Tutorial handlers ---

func (s *Server) handleTutorialStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Tutorial().Status())
}

func (s *Server) handleTutorialStart(w http.ResponseWriter, r *http.Request) {
	step := s.engine.TutorialStart()
	writeJSON(w, http.StatusOK, map[string]any{
		"step":            step,
		"example_command": step.Command,
		"total":           len(s.engine.Tutorial().Steps()),
	})
}

func (s *Server) handleTutorialSubmit(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.decodeInvocation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.TutorialSubmit(r.Context(), inv))
}

func (s *Server) handleTutorialReset(w http.ResponseWriter, r *http.Request) {
	s.engine.TutorialReset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// --- History handlers ---

func (s *Server) historyEnabled(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return false
	}
	return true
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	opts := storage.ListOptions{}

	if mode := r.URL.Query().Get("mode"); mode != "" {
		opts.Mode = storage.Mode(mode)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	execs, err := s.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if execs == nil {
		execs = []storage.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	id := chi.URLParam(r, "id")
	e, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	if _, err := s.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
