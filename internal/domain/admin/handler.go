package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/domain/subscription"
	"github.com/aislide/aislide-bot/internal/middleware"
	"github.com/aislide/aislide-bot/internal/pkg/jwt"
	"github.com/aislide/aislide-bot/internal/pkg/password"
	"github.com/aislide/aislide-bot/internal/pkg/response"
	"github.com/aislide/aislide-bot/internal/pkg/validator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Credentials is the single console account.
type Credentials struct {
	Username     string
	PasswordHash string // bcrypt
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type CreateChannelRequest struct {
	ChatRef    string `json:"chat_ref" validate:"required,max=255"`
	Title      string `json:"title" validate:"required,max=255"`
	InviteLink string `json:"invite_link" validate:"omitempty,url"`
}

type UserResponse struct {
	Stats        *ledger.Stats        `json:"stats"`
	TotalSpent   string               `json:"total_spent"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// Handler serves the admin console API.
type Handler struct {
	relay    *Relay
	ledger   *ledger.Service
	channels subscription.Repository
	jwt      *jwt.Service
	hub      *Hub
	creds    Credentials
	upgrader websocket.Upgrader
}

func NewHandler(relay *Relay, ledgerSvc *ledger.Service, channels subscription.Repository, jwtSvc *jwt.Service, hub *Hub, creds Credentials, allowedOrigins []string) *Handler {
	return &Handler{
		relay:    relay,
		ledger:   ledgerSvc,
		channels: channels,
		jwt:      jwtSvc,
		hub:      hub,
		creds:    creds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// Routes mounts the admin API. Everything but login requires a token.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.jwt))
		r.Get("/deposits", h.ListDeposits)
		r.Post("/deposits/{id}/approve", h.Approve)
		r.Post("/deposits/{id}/reject", h.Reject)
		r.Get("/users/{id}", h.GetUser)
		r.Get("/channels", h.ListChannels)
		r.Post("/channels", h.CreateChannel)
		r.Delete("/channels/{id}", h.DeleteChannel)
		r.Get("/ws", h.WebSocket)
	})
	return r
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if err := h.checkCredentials(req.Username, req.Password); err != nil {
		log.Warn().Str("username", req.Username).Msg("Admin login failed")
		response.Unauthorized(w, "Invalid username or password")
		return
	}

	token, err := h.jwt.GenerateAccessToken(0, h.creds.Username)
	if err != nil {
		response.InternalError(w)
		return
	}

	log.Info().Str("username", req.Username).Msg("Admin logged in")
	response.OK(w, &LoginResponse{AccessToken: token, ExpiresIn: int(h.jwt.GetAccessTTL().Seconds())})
}

func (h *Handler) checkCredentials(username, plain string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.creds.Username)) == 1
	err := password.Verify(plain, h.creds.PasswordHash)
	if errors.Is(err, password.ErrBadHash) {
		log.Error().Msg("ADMIN_PASSWORD_HASH is missing or malformed")
	}
	if !userOK || err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ListDeposits handles GET /deposits?status=pending&limit=50
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	status := ledger.Status(strings.ToLower(r.URL.Query().Get("status")))
	if status == "" {
		status = ledger.StatusPending
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		items []ledger.Transaction
		err   error
	)
	if status == ledger.StatusPending {
		items, err = h.ledger.ListPending(r.Context(), limit)
	} else {
		items, err = h.ledger.ListByStatus(r.Context(), status, limit)
	}
	if errors.Is(err, ledger.ErrInvalidStatus) {
		response.BadRequest(w, "Unknown status")
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, items)
}

// Approve handles POST /deposits/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, DecisionApprove)
}

// Reject handles POST /deposits/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, DecisionReject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, decision Decision) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid transaction ID")
		return
	}

	res, err := h.relay.Resolve(r.Context(), middleware.GetAdminID(r.Context()), id, decision)
	switch {
	case errors.Is(err, ledger.ErrAlreadyResolved):
		response.Conflict(w, "Transaction already resolved")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		response.NotFound(w, "Transaction not found")
	case err != nil:
		response.InternalError(w)
	default:
		response.OK(w, res)
	}
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	stats, err := h.ledger.Stats(r.Context(), id)
	if errors.Is(err, ledger.ErrUserNotFound) {
		response.NotFound(w, "User not found")
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}
	txs, err := h.ledger.ListTransactions(r.Context(), id, 20)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, &UserResponse{Stats: stats, TotalSpent: stats.TotalSpent().String(), Transactions: txs})
}

// ListChannels handles GET /channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	items, err := h.channels.ListActive(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, items)
}

// CreateChannel handles POST /channels
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	ch := &subscription.Channel{
		ChatRef:    strings.TrimSpace(req.ChatRef),
		Title:      strings.TrimSpace(req.Title),
		InviteLink: strings.TrimSpace(req.InviteLink),
	}
	if err := h.channels.Create(r.Context(), ch); err != nil {
		if errors.Is(err, subscription.ErrInvalidChannel) {
			response.BadRequest(w, "Invalid channel")
			return
		}
		response.InternalError(w)
		return
	}
	log.Info().Str("chat_ref", ch.ChatRef).Str("admin", middleware.GetUsername(r.Context())).Msg("Required channel added")
	response.JSON(w, http.StatusCreated, ch)
}

// DeleteChannel handles DELETE /channels/{id}
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid channel ID")
		return
	}
	if err := h.channels.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, subscription.ErrChannelNotFound) {
			response.NotFound(w, "Channel not found")
			return
		}
		response.InternalError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebSocket handles GET /ws, the live deposit feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Connection{
		AdminID: middleware.GetAdminID(r.Context()),
		Conn:    conn,
		Send:    make(chan []byte, 64),
	}
	h.hub.Register(client)

	go h.wsReader(client)
	go h.wsWriter(client)
}

// wsReader only drains control frames; the feed is one-way.
func (h *Handler) wsReader(client *Connection) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Int64("admin_id", client.AdminID).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *Handler) wsWriter(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
