package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/httpapi/handler"
	"github.com/vntrieu/roomlink/internal/websocket"
)

func websocketRejected(reason string) error {
	return fmt.Errorf("%w: %s", websocket.ErrRejected, reason)
}

func TestSendCommand(t *testing.T) {
	t.Run("by name", func(t *testing.T) {
		ctrl := &fakeController{}
		h := handler.NewCommandHandler(ctrl, zerolog.Nop())
		body := `{"type":"countdown","command":"10","targets":"team:1"}`
		w := httptest.NewRecorder()
		h.Send(w, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(body)))
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", w.Code)
		}
		want := command.Message{CommandType: command.TypeCountdown, Command: "10", Targets: "team:1"}
		if ctrl.sent != want {
			t.Errorf("expected %+v, got %+v", want, ctrl.sent)
		}
	})

	t.Run("by number", func(t *testing.T) {
		ctrl := &fakeController{}
		h := handler.NewCommandHandler(ctrl, zerolog.Nop())
		w := httptest.NewRecorder()
		h.Send(w, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(`{"type":"1","command":"pull"}`)))
		if w.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", w.Code)
		}
		if ctrl.sent.CommandType != command.TypeNotify {
			t.Errorf("expected notify, got %v", ctrl.sent.CommandType)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		ctrl := &fakeController{}
		h := handler.NewCommandHandler(ctrl, zerolog.Nop())
		w := httptest.NewRecorder()
		h.Send(w, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(`{"type":"dance"}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		if len(ctrl.called()) != 0 {
			t.Errorf("expected no controller call, got %v", ctrl.called())
		}
	})

	t.Run("throttled", func(t *testing.T) {
		ctrl := &fakeController{err: fmt.Errorf("%w: retry in 1s", command.ErrThrottled)}
		h := handler.NewCommandHandler(ctrl, zerolog.Nop())
		w := httptest.NewRecorder()
		h.Send(w, httptest.NewRequest(http.MethodPost, "/api/commands", strings.NewReader(`{"type":"notify"}`)))
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", w.Code)
		}
	})
}

func TestUpdatePlayer(t *testing.T) {
	t.Run("job only", func(t *testing.T) {
		p := &fakePlayer{job: "WHM", profile: "healer"}
		h := handler.NewPlayerHandler(p, zerolog.Nop())
		w := httptest.NewRecorder()
		h.Update(w, httptest.NewRequest(http.MethodPut, "/api/player", strings.NewReader(`{"job":"SCH"}`)))
		if w.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", w.Code)
		}
		if p.job != "SCH" || p.profile != "healer" {
			t.Errorf("unexpected player %+v", p)
		}
	})

	t.Run("empty update", func(t *testing.T) {
		h := handler.NewPlayerHandler(&fakePlayer{}, zerolog.Nop())
		w := httptest.NewRecorder()
		h.Update(w, httptest.NewRequest(http.MethodPut, "/api/player", strings.NewReader(`{}`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}
