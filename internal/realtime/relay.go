package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/anonto42/threadline/backend/pkg/logging"
)

type envelope struct {
	UserID  uint            `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans pushes out to every instance through a redis channel. Each
// instance runs Start and hands received payloads to its own gateway, so a
// user connected to any instance gets the push. It keeps the gateway's
// at-most-once contract.
type Relay struct {
	rdb     *redis.Client
	channel string
	gateway *Gateway
	log     zerolog.Logger
}

// NewRelay creates a Relay publishing on channel
func NewRelay(rdb *redis.Client, channel string, gateway *Gateway) *Relay {
	return &Relay{
		rdb:     rdb,
		channel: channel,
		gateway: gateway,
		log:     logging.WithComponent("live-relay"),
	}
}

// Push publishes payload for userID. When redis is unreachable the payload
// is delivered to local sessions only.
func (r *Relay) Push(ctx context.Context, userID uint, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	raw, err := encodeEnvelope(userID, data)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		r.log.Warn().Err(err).Uint("user_id", userID).Msg("relay publish failed, delivering locally")
		r.gateway.Deliver(userID, data)
	}
	return nil
}

// Start subscribes to the relay channel and forwards messages until ctx is
// done.
func (r *Relay) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				r.forward(m.Payload)
			}
		}
	}()
	r.log.Info().Str("channel", r.channel).Msg("live relay subscribed")
	return nil
}

func (r *Relay) forward(raw string) {
	env, err := decodeEnvelope([]byte(raw))
	if err != nil {
		r.log.Warn().Err(err).Msg("bad relay payload")
		return
	}
	r.gateway.Deliver(env.UserID, env.Payload)
}

func encodeEnvelope(userID uint, payload []byte) ([]byte, error) {
	return json.Marshal(envelope{UserID: userID, Payload: payload})
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.UserID == 0 || len(env.Payload) == 0 {
		return envelope{}, fmt.Errorf("relay envelope missing user or payload")
	}
	return env, nil
}
