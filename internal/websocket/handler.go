package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"docvault/internal/services"
	"docvault/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	hub        *Hub
	authorizer *ChannelAuthorizer
	upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, authorizer *ChannelAuthorizer) *Handler {
	return &Handler{
		hub:        hub,
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect serves GET /v1/ws?channel=uploads&channel=session:<key>.
func (h *Handler) Connect(c *gin.Context) {
	channels := c.QueryArray("channel")
	if len(channels) == 0 {
		channels = []string{UploadsChannel}
	}
	h.serve(c, channels)
}

// SessionStream serves GET /v1/uploads/:key/ws.
func (h *Handler) SessionStream(c *gin.Context) {
	h.serve(c, []string{SessionChannel(c.Param("key"))})
}

func (h *Handler) serve(c *gin.Context, channels []string) {
	var snapshots [][]byte
	for _, channel := range channels {
		session, err := h.authorizer.CanSubscribe(channel)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errUnknownSession) {
				status = http.StatusNotFound
			}
			c.JSON(status, httpdto.NewErrorResponse(err.Error(), "INVALID_CHANNEL"))
			return
		}
		if session != nil {
			payload, err := json.Marshal(services.SessionUpdate(services.UpdateSnapshot, *session))
			if err == nil {
				snapshots = append(snapshots, payload)
			}
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Error("upgrade_failed", "", err, zap.String("remote_addr", c.ClientIP()))
		return
	}

	client := NewClient(conn, c.ClientIP())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	for _, channel := range channels {
		h.hub.Subscribe(client, channel)
	}
	for _, payload := range snapshots {
		client.SendMessage(payload)
	}
	go client.WriteLoop(ctx)

	onMessage := func(msg InboundMessage) { h.handleMessage(client, msg) }
	if err := client.ReadLoop(onMessage); errors.Is(err, errInboundRateExceeded) {
		h.hub.log.Warn("rate_limited", client.ID, zap.String("remote_addr", client.RemoteAddr))
	}

	h.hub.Unregister(client)
}

type controlReply struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleMessage applies a client control frame. Only unsubscribe is
// understood; subscriptions are fixed when the connection is opened.
func (h *Handler) handleMessage(client *Client, msg InboundMessage) {
	reply := controlReply{Type: "error", Channel: msg.Channel}
	switch msg.Type {
	case "unsubscribe":
		if client.IsSubscribed(msg.Channel) {
			h.hub.Unsubscribe(client, msg.Channel)
			reply.Type = "unsubscribed"
		} else {
			reply.Error = "not subscribed"
		}
	default:
		reply.Error = "unknown message type"
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	client.SendMessage(payload)
}
