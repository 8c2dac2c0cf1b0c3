// Package notify implements the asynchronous notification gateway over
// browser push. Every delivery is fire-and-forget: failures are logged
// and swallowed here, never surfaced to the call core.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

// VAPID carries the keys webpush signs requests with.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Gateway pushes call notifications to a user's registered push
// endpoints.
type Gateway struct {
	store  *store.Store
	vapid  VAPID
	logger *slog.Logger
}

func NewGateway(st *store.Store, vapid VAPID, logger *slog.Logger) *Gateway {
	return &Gateway{store: st, vapid: vapid, logger: logger}
}

type pushPayload struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// NotifyCallInvitation pushes an incoming-call notification.
func (g *Gateway) NotifyCallInvitation(recipientID string, sender *models.User, room *models.Room) {
	name := sender.DisplayName
	if name == "" {
		name = sender.Username
	}
	g.send(recipientID, pushPayload{
		Type:  "call-invitation",
		Title: "Incoming call",
		Body:  name + " is calling you",
		Data: map[string]any{
			"room_id":   room.Code,
			"room_name": room.Name,
			"call_type": room.CallType,
			"from_id":   sender.ID,
			"from_name": name,
		},
	})
}

// NotifyCallResponse pushes an accept/decline echo.
func (g *Gateway) NotifyCallResponse(recipientID string, sender *models.User, roomID string, accepted bool) {
	name := sender.DisplayName
	if name == "" {
		name = sender.Username
	}
	body := name + " declined the call"
	if accepted {
		body = name + " accepted the call"
	}
	g.send(recipientID, pushPayload{
		Type:  "call-response",
		Title: "Call update",
		Body:  body,
		Data: map[string]any{
			"room_id":  roomID,
			"from_id":  sender.ID,
			"accepted": accepted,
		},
	})
}

func (g *Gateway) send(recipientID string, payload pushPayload) {
	if g.vapid.PublicKey == "" || g.vapid.PrivateKey == "" {
		g.logger.Debug("push disabled, no VAPID keys", "recipient", recipientID)
		return
	}

	subs, err := g.store.PushSubscriptionsByUser(recipientID)
	if err != nil {
		g.logger.Warn("push: loading subscriptions failed",
			"recipient", recipientID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Warn("push: payload marshal failed", "error", err)
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(data, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      g.vapid.Subject,
			VAPIDPublicKey:  g.vapid.PublicKey,
			VAPIDPrivateKey: g.vapid.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			g.logger.Warn("push: delivery failed",
				"recipient", recipientID, "error", err)
			continue
		}

		// Endpoints that are gone get pruned so we stop retrying them.
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := g.store.DeletePushSubscription(sub.UserID, sub.Endpoint); err != nil {
				g.logger.Warn("push: pruning dead endpoint failed", "error", err)
			}
		}
		_ = resp.Body.Close()
	}
}
