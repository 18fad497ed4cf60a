package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// AgentStatus is what an upload agent advertises about itself.
type AgentStatus struct {
	Name           string    `json:"name"`
	ActiveSessions int       `json:"active_sessions"`
	LastSeen       time.Time `json:"last_seen"`
}

const (
	agentKeyPrefix = "agent:"
	agentOnlineSet = "agent:online"
)

// AgentRegistry tracks live upload agents with heartbeats.
type AgentRegistry struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewAgentRegistry(client *goredis.Client, ttl time.Duration) *AgentRegistry {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &AgentRegistry{client: client, ttl: ttl}
}

// Heartbeat refreshes the agent's entry; it expires after the TTL.
func (a *AgentRegistry) Heartbeat(ctx context.Context, name string, activeSessions int) error {
	status := AgentStatus{Name: name, ActiveSessions: activeSessions, LastSeen: time.Now().UTC()}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	pipe := a.client.Pipeline()
	pipe.Set(ctx, agentKeyPrefix+name, data, a.ttl)
	pipe.SAdd(ctx, agentOnlineSet, name)
	_, err = pipe.Exec(ctx)
	return err
}

func (a *AgentRegistry) Deregister(ctx context.Context, name string) error {
	pipe := a.client.Pipeline()
	pipe.Del(ctx, agentKeyPrefix+name)
	pipe.SRem(ctx, agentOnlineSet, name)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns agents whose heartbeat has not expired and prunes the rest.
func (a *AgentRegistry) List(ctx context.Context) ([]AgentStatus, error) {
	names, err := a.client.SMembers(ctx, agentOnlineSet).Result()
	if err != nil {
		return nil, err
	}

	var result []AgentStatus
	for _, name := range names {
		data, err := a.client.Get(ctx, agentKeyPrefix+name).Result()
		if err == goredis.Nil {
			a.client.SRem(ctx, agentOnlineSet, name)
			continue
		}
		if err != nil {
			return nil, err
		}

		var status AgentStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", name, err)
		}
		result = append(result, status)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
