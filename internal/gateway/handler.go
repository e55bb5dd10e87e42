package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/parley-labs/parley/internal/practice"
	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/trainee"
	"github.com/parley-labs/parley/internal/transcript"
)

// AuthFunc resolves the calling trainee from a platform credential.
type AuthFunc func(r *http.Request) (traineeID string, err error)

// TokenService mints and verifies session-scoped access tokens.
type TokenService interface {
	Mint(traineeID, sessionID string) (string, error)
	Verify(token string) (traineeID, sessionID string, err error)
}

type Handler struct {
	sessions *practice.Manager
	trainees *trainee.Manager
	records  *transcript.Store
	tokens   TokenService
	auth     AuthFunc
	hub      *Hub
	log      *slog.Logger
}

func NewHandler(sessions *practice.Manager, trainees *trainee.Manager, records *transcript.Store, tokens TokenService, auth AuthFunc, hub *Hub, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		trainees: trainees,
		records:  records,
		tokens:   tokens,
		auth:     auth,
		hub:      hub,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/history", h.History)
	g.GET("/sessions/:session_id", h.GetSession)
	g.POST("/sessions/:session_id/ready", h.Ready)
	g.POST("/sessions/:session_id/calls", h.StartCall)
	g.POST("/sessions/:session_id/pause", h.Pause)
	g.POST("/sessions/:session_id/resume", h.Resume)
	g.POST("/sessions/:session_id/end", h.EndSession)
	g.POST("/sessions/:session_id/screen-share", h.ScreenShare)
	g.POST("/sessions/:session_id/abandon", h.AbandonBeacon)
	g.GET("/sessions/:session_id/events", h.Events)
}

type CreateSessionRequest struct {
	ScenarioID     string `json:"scenario_id"`
	PersonaID      string `json:"persona_id"`
	ScenarioPrompt string `json:"scenario_prompt,omitempty"`
	ScreenShare    bool   `json:"screen_share,omitempty"`
}

type CreateSessionResponse struct {
	Session practice.Snapshot `json:"session"`
	Token   string            `json:"token"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	traineeID, err := h.auth(c.Request())
	if err != nil {
		return shared.Unauthorized("unauthorized", "invalid credentials")
	}

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}
	if req.ScenarioID == "" || req.PersonaID == "" {
		return shared.BadRequest("missing_fields", "scenario_id and persona_id are required")
	}

	sess, err := h.sessions.Create(c.Request().Context(), traineeID, req.ScenarioID, req.PersonaID, req.ScenarioPrompt, req.ScreenShare)
	if errors.Is(err, shared.ErrConflict) {
		return shared.Conflict("session_active", "a practice session is already in progress")
	}
	if err != nil {
		h.log.Error("session create failed", "error", err)
		return shared.InternalError("create_failed", "could not create session")
	}

	token, err := h.tokens.Mint(traineeID, sess.ID())
	if err != nil {
		h.log.Error("session token mint failed", "session_id", sess.ID(), "error", err)
		return shared.InternalError("token_failed", "could not issue session token")
	}

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		Session: sess.Snapshot(),
		Token:   token,
	})
}

// authorize verifies the session-scoped token from the Authorization
// header or, for endpoints the browser cannot set headers on, the token
// query parameter.
func (h *Handler) authorize(c echo.Context) (*practice.Session, error) {
	token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if token == "" || token == c.Request().Header.Get("Authorization") {
		token = c.QueryParam("token")
	}
	if token == "" {
		return nil, shared.Unauthorized("unauthorized", "missing session token")
	}

	traineeID, sessionID, err := h.tokens.Verify(token)
	if err != nil {
		return nil, shared.Unauthorized("unauthorized", "invalid session token")
	}
	if sessionID != c.Param("session_id") {
		return nil, shared.Forbidden("forbidden", "token does not match session")
	}

	sess, err := h.sessions.Get(sessionID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NotFound("not_found", "session not found")
	}
	if err != nil {
		return nil, shared.InternalError("lookup_failed", "could not load session")
	}
	if sess.TraineeID() != traineeID {
		return nil, shared.Forbidden("forbidden", "session belongs to another trainee")
	}
	return sess, nil
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *Handler) Ready(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}
	if err := sess.Ready(); errors.Is(err, shared.ErrConflict) {
		return shared.Conflict("wrong_state", "session is not in briefing")
	}
	return c.NoContent(http.StatusNoContent)
}

type StartCallRequest struct {
	SDP string `json:"sdp"`
}

type StartCallResponse struct {
	SDP string `json:"sdp"`
}

// StartCall accepts the browser's SDP offer and returns the answer. The
// partner handshake continues in the background; its outcome arrives on
// the event feed.
func (h *Handler) StartCall(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}

	var req StartCallRequest
	if err := c.Bind(&req); err != nil || req.SDP == "" {
		return shared.BadRequest("invalid_body", "sdp offer is required")
	}

	conn, answer, err := h.trainees.Accept(req.SDP)
	if err != nil {
		h.log.Error("trainee handshake failed", "session_id", sess.ID(), "error", err)
		return shared.BadRequest("handshake_failed", "could not accept offer")
	}

	go h.runCall(sess, conn)

	return c.JSON(http.StatusOK, StartCallResponse{SDP: answer})
}

// runCall waits for the trainee leg to establish, drives the partner-side
// connect, and then watches the trainee connection. A trainee leg that dies
// without an End is an abandonment.
func (h *Handler) runCall(sess *practice.Session, conn *trainee.Conn) {
	if !h.waitConnected(conn, 30*time.Second) {
		h.hub.Publish(practice.Event{
			Kind:      practice.EventAdvisory,
			SessionID: sess.ID(),
			Text:      "the call could not be established",
		})
		conn.Close()
		return
	}

	if err := sess.Start(context.Background(), conn); err != nil {
		h.log.Error("session start failed", "session_id", sess.ID(), "error", err)
		h.hub.Publish(practice.Event{
			Kind:      practice.EventAdvisory,
			SessionID: sess.ID(),
			Text:      startFailureAdvisory(err),
		})
		conn.Close()
		return
	}

	<-conn.Done()
	sess.Abandon(context.Background())
}

func (h *Handler) waitConnected(conn *trainee.Conn, budget time.Duration) bool {
	deadline := time.NewTimer(budget)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if conn.IsConnected() {
			return true
		}
		select {
		case <-conn.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

func startFailureAdvisory(err error) string {
	switch {
	case errors.Is(err, shared.ErrPermissionDenied):
		return "microphone permission was not granted"
	case errors.Is(err, shared.ErrRateLimited):
		return "too many sessions right now, try again shortly"
	case errors.Is(err, shared.ErrHandshakeTimeout):
		return "could not reach the conversation partner in time"
	default:
		return "the conversation partner could not be connected"
	}
}

func (h *Handler) Pause(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}
	if err := sess.Pause(); errors.Is(err, shared.ErrConflict) {
		return shared.Conflict("wrong_state", "session is not in a call")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Resume(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}
	if err := sess.Resume(); errors.Is(err, shared.ErrConflict) {
		return shared.Conflict("wrong_state", "session is not in a call")
	}
	return c.NoContent(http.StatusNoContent)
}

type EndSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) EndSession(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}

	var req EndSessionRequest
	_ = c.Bind(&req)
	reason := req.Reason
	if reason == "" {
		reason = "trainee_request"
	}

	if err := sess.End(c.Request().Context(), reason); err != nil {
		h.log.Error("session end failed", "session_id", sess.ID(), "error", err)
		return shared.InternalError("end_failed", "could not end session")
	}
	return c.NoContent(http.StatusNoContent)
}

type ScreenShareRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) ScreenShare(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return err
	}

	var req ScreenShareRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}

	if !req.Active {
		sess.StopScreenShare()
		return c.NoContent(http.StatusNoContent)
	}
	if err := sess.StartScreenShare(); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("wrong_state", "session is not in a call")
		}
		h.log.Error("screen share start failed", "session_id", sess.ID(), "error", err)
		return shared.InternalError("screen_share_failed", "could not start screen share")
	}
	return c.NoContent(http.StatusNoContent)
}

// AbandonBeacon is the page-unload endpoint. Browsers fire it with
// sendBeacon, which cannot read the response, so it always returns 204 and
// does all its work server side.
func (h *Handler) AbandonBeacon(c echo.Context) error {
	sess, err := h.authorize(c)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}
	sess.Abandon(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	traineeID, err := h.auth(c.Request())
	if err != nil {
		return shared.Unauthorized("unauthorized", "invalid credentials")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := h.records.ListByTrainee(c.Request().Context(), traineeID, limit)
	if err != nil {
		h.log.Error("history lookup failed", "trainee_id", traineeID, "error", err)
		return shared.InternalError("history_failed", "could not load history")
	}
	return c.JSON(http.StatusOK, map[string]any{"records": recs})
}
