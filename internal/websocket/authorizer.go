package websocket

import (
	"errors"
	"strings"

	"docvault/internal/domain/upload"
)

var (
	errUnknownChannel = errors.New("unknown channel")
	errUnknownSession = errors.New("unknown upload session")
)

// SessionLookup is satisfied by the upload service.
type SessionLookup interface {
	Get(key string) (upload.Session, error)
}

// ChannelAuthorizer decides which channels a connection may join.
type ChannelAuthorizer struct {
	sessions SessionLookup
}

func NewChannelAuthorizer(sessions SessionLookup) *ChannelAuthorizer {
	return &ChannelAuthorizer{sessions: sessions}
}

// CanSubscribe accepts the two feeds and the channel of any session known
// to this agent. Session channels also return the current snapshot.
func (a *ChannelAuthorizer) CanSubscribe(channel string) (*upload.Session, error) {
	switch {
	case channel == UploadsChannel, channel == EventsChannel:
		return nil, nil
	case strings.HasPrefix(channel, sessionChannelBase):
		key := strings.TrimPrefix(channel, sessionChannelBase)
		s, err := a.sessions.Get(key)
		if err != nil {
			return nil, errUnknownSession
		}
		return &s, nil
	default:
		return nil, errUnknownChannel
	}
}
