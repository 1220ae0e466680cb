package collabs

import (
	"context"
	"fmt"
	"sync"

	"accountd/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
)

// PresenceManager is the narrow contract accounts/manager disconnects a
// device's live connection through. Disconnection is always best-effort:
// by the time delete() reaches this call the durable row is already gone,
// so a failure here is logged and swallowed rather than surfaced.
type PresenceManager interface {
	DisconnectPresence(ctx context.Context, aci uuid.UUID, deviceID uint32) error
}

func connectionKey(aci uuid.UUID) string {
	return fmt.Sprintf("connections:%s", aci.String())
}

// RedisPresenceManager tracks live WebSocket connections in two places:
// a process-local registry of the actual *websocket.Conn (so this process
// can close a socket it's holding), and a Redis hash recording which
// device/connection pairs are live across the whole fleet (one hash per
// aci, keyed by device id).
type RedisPresenceManager struct {
	client *goredis.Client
	log    *logger.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewRedisPresenceManager(client *goredis.Client, log *logger.Logger) *RedisPresenceManager {
	return &RedisPresenceManager{
		client: client,
		log:    log,
		conns:  make(map[string]*websocket.Conn),
	}
}

// RegisterConnection records that aci/deviceID now has a live local socket.
// Called by the transport layer when a device completes its WebSocket
// handshake; out of scope for the coordinator itself but needed here so
// DisconnectPresence has something real to close.
func (p *RedisPresenceManager) RegisterConnection(aci uuid.UUID, deviceID uint32, conn *websocket.Conn) {
	key := fmt.Sprintf("%s:%d", aci, deviceID)
	p.mu.Lock()
	p.conns[key] = conn
	p.mu.Unlock()

	p.client.HSet(context.Background(), connectionKey(aci), fmt.Sprintf("%d", deviceID), "1")
}

func (p *RedisPresenceManager) DisconnectPresence(ctx context.Context, aci uuid.UUID, deviceID uint32) error {
	key := fmt.Sprintf("%s:%d", aci, deviceID)

	p.mu.Lock()
	conn, ok := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()

	if ok {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "account deleted"))
		_ = conn.Close()
	}

	if err := p.client.HDel(ctx, connectionKey(aci), fmt.Sprintf("%d", deviceID)).Err(); err != nil {
		return fmt.Errorf("clear connection record for %s device %d: %w", aci, deviceID, err)
	}
	return nil
}
