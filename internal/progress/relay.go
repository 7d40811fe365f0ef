package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay bridges redis pub/sub rooms to in-process subscriber channels.
// Subscription bookkeeping is per org so idle orgs release their rooms and
// memory stays bounded.
type Relay struct {
	rdb *redis.Client
	log *zap.Logger

	mu      sync.Mutex
	rooms   map[string]*room
	orgSubs map[string]int
	closed  bool
}

type room struct {
	pubsub *redis.PubSub
	subs   map[chan Payload]struct{}
}

func NewRelay(rdb *redis.Client, log *zap.Logger) *Relay {
	return &Relay{
		rdb:     rdb,
		log:     log.Named("progress.relay"),
		rooms:   map[string]*room{},
		orgSubs: map[string]int{},
	}
}

// Subscribe attaches to the room for one org's job. The returned channel
// drops events if the subscriber stops draining. The cancel func must be
// called exactly once.
func (r *Relay) Subscribe(ctx context.Context, orgID, jobID string) (<-chan Payload, func(), error) {
	key := Room(orgID, jobID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, context.Canceled
	}

	rm, ok := r.rooms[key]
	if !ok {
		pubsub := r.rdb.Subscribe(context.Background(), key)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, nil, err
		}
		rm = &room{pubsub: pubsub, subs: map[chan Payload]struct{}{}}
		r.rooms[key] = rm
		go r.pump(key, rm)
	}

	ch := make(chan Payload, 16)
	rm.subs[ch] = struct{}{}
	r.orgSubs[orgID]++

	unsubscribe := func() { r.unsubscribe(key, orgID, rm, ch) }
	return ch, unsubscribe, nil
}

// OrgSubscriberCount reports active subscriptions for an org. Zero means
// all of the org's rooms have been torn down.
func (r *Relay) OrgSubscriberCount(orgID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orgSubs[orgID]
}

// Close tears down every room. Used on shutdown.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, rm := range r.rooms {
		rm.pubsub.Close()
		for ch := range rm.subs {
			close(ch)
		}
		delete(r.rooms, key)
	}
	r.orgSubs = map[string]int{}
	return nil
}

func (r *Relay) pump(key string, rm *room) {
	for msg := range rm.pubsub.Channel() {
		var payload Payload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			r.log.Warn("dropping malformed progress event", zap.String("room", key), zap.Error(err))
			continue
		}

		r.mu.Lock()
		for ch := range rm.subs {
			select {
			case ch <- payload:
			default:
				// Slow subscriber; delivery is at-most-once.
			}
		}
		r.mu.Unlock()
	}
}

func (r *Relay) unsubscribe(key, orgID string, rm *room, ch chan Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := rm.subs[ch]; !ok {
		return
	}
	delete(rm.subs, ch)
	close(ch)

	if r.orgSubs[orgID] > 0 {
		r.orgSubs[orgID]--
	}
	if r.orgSubs[orgID] == 0 {
		delete(r.orgSubs, orgID)
		r.log.Debug("org has no remaining subscribers", zap.String("org_id", orgID))
	}
	if len(rm.subs) == 0 {
		rm.pubsub.Close()
		delete(r.rooms, key)
	}
}
