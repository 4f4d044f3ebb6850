package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"pairspace-backend/internal/metrics"
	"pairspace-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const pushTimeout = 10 * time.Second

type pushFunc func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error)

// PushNotifier sends an APNs alert to the other partner's devices when the
// shared space changes
type PushNotifier struct {
	push    pushFunc
	devices DeviceStore
	topic   string
}

// APNSOptions configures token-based APNs authentication
type APNSOptions struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// NewPushNotifier loads the .p8 signing key and creates an APNs client
func NewPushNotifier(opts APNSOptions, devices DeviceStore) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   opts.KeyID,
		TeamID:  opts.TeamID,
	})
	if opts.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return newPushNotifier(func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error) {
		return client.PushWithContext(ctx, n)
	}, devices, opts.Topic), nil
}

func newPushNotifier(push pushFunc, devices DeviceStore, topic string) *PushNotifier {
	return &PushNotifier{push: push, devices: devices, topic: topic}
}

// Publish implements Publisher. Notifications are sent in the background so
// the request that caused the event is not delayed.
func (p *PushNotifier) Publish(ctx context.Context, e Event) {
	if e.Type != EventSpaceUpdated || e.Actor == "" || e.Action == ActionSpaceCreated {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		p.notify(ctx, e)
	}()
}

func (p *PushNotifier) notify(ctx context.Context, e Event) {
	devices, err := p.devices.ListByCoupleID(ctx, e.CoupleID)
	if err != nil {
		log.Error().Err(err).Str("couple_id", e.CoupleID).Msg("Failed to list devices")
		return
	}

	body := alertBody(e)
	for _, d := range devices {
		if d.PartnerName == e.Actor {
			continue
		}

		n := &apns2.Notification{
			DeviceToken: d.DeviceToken,
			Topic:       p.topic,
			Payload: payload.NewPayload().
				AlertTitle("Your shared space").
				AlertBody(body).
				Sound("default").
				Custom("coupleId", e.CoupleID).
				Custom("kind", string(e.Kind)),
		}

		res, err := p.push(ctx, n)
		if err != nil {
			metrics.EventsDelivered.WithLabelValues("apns", "error").Inc()
			log.Error().Err(err).Str("couple_id", e.CoupleID).Msg("Failed to send push notification")
			continue
		}
		if !res.Sent() {
			metrics.EventsDelivered.WithLabelValues("apns", "rejected").Inc()
			log.Warn().
				Int("status", res.StatusCode).
				Str("reason", res.Reason).
				Str("couple_id", e.CoupleID).
				Msg("Push notification rejected")
			if res.Reason == apns2.ReasonBadDeviceToken || res.Reason == apns2.ReasonUnregistered {
				if err := p.devices.DeleteByToken(ctx, d.DeviceToken); err != nil {
					log.Error().Err(err).Msg("Failed to delete stale device")
				}
			}
			continue
		}
		metrics.EventsDelivered.WithLabelValues("apns", "ok").Inc()
	}
}

func alertBody(e Event) string {
	what := map[models.ItemKind]string{
		models.KindGallery: "a photo",
		models.KindSong:    "a song",
		models.KindNote:    "a note",
	}[e.Kind]
	if what == "" {
		what = "something"
	}
	// stored names are HTML-escaped, alerts are plain text
	actor := html.UnescapeString(e.Actor)

	switch e.Action {
	case ActionItemAdded:
		return fmt.Sprintf("%s added %s", actor, what)
	case ActionItemEdited:
		return fmt.Sprintf("%s edited %s", actor, what)
	case ActionItemDeleted:
		return fmt.Sprintf("%s removed %s", actor, what)
	case ActionReactionSet:
		return fmt.Sprintf("%s reacted to %s", actor, what)
	default:
		return fmt.Sprintf("%s updated your space", actor)
	}
}
