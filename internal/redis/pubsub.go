package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RideEventsPubSub fans out "this ride's seat pool changed" notifications so
// other processes can drop cached projections.
type RideEventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewRideEventsPubSub(rdb *redis.Client) *RideEventsPubSub {
	return &RideEventsPubSub{
		rdb:     rdb,
		channel: ChannelRidesChanged(),
	}
}

type rideChangedMsg struct {
	Type   string `json:"type"`
	RideID int64  `json:"ride_id"`
	TsUnix int64  `json:"ts_unix"`
}

func (p *RideEventsPubSub) PublishRideChanged(ctx context.Context, rideID int64) error {
	msg := rideChangedMsg{
		Type:   "ride_changed",
		RideID: rideID,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *RideEventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, rideID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev rideChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil && ev.RideID != 0 {
				handler(ctx, ev.RideID)
			}
		}
	}
}
