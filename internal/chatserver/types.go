package chatserver

import (
	"github.com/google/uuid"
	"github.com/kstaniek/go-chat-server/internal/connio"
)

// GlobalChannel is the reserved, permanent, empty-named channel every
// active client joins on admission.
const GlobalChannel = ""

// DirectChannel tags a Msg frame carrying a direct message; it can never be
// created as a channel.
const DirectChannel = "__direct"

// MaxOffenses is the offense count at which a client is kicked during prune.
const MaxOffenses = 5

// client is an admitted session. A passive listener has name == "" and
// passive == true; it never appears in the active-by-name map.
type client struct {
	id       uuid.UUID
	conn     *connio.Conn
	name     string
	passive  bool
	offenses int
	blocked  map[string]struct{}
}

func newClient(conn *connio.Conn, name string, passive bool) *client {
	return &client{id: conn.ID(), conn: conn, name: name, passive: passive, blocked: make(map[string]struct{})}
}

func (c *client) isBlocking(name string) bool {
	_, ok := c.blocked[name]
	return ok
}

// channel groups a duplicate-free, ordered member list and a per-tick
// outgoing message queue.
type channel struct {
	name     string
	password string
	members  []string
	queue    []channelMessage
}

type channelMessage struct {
	sender string
	body   string
}

func newChannel(name, password string) *channel {
	return &channel{name: name, password: password}
}

func (ch *channel) hasMember(name string) bool {
	for _, m := range ch.members {
		if m == name {
			return true
		}
	}
	return false
}

func (ch *channel) addMember(name string) {
	if !ch.hasMember(name) {
		ch.members = append(ch.members, name)
	}
}

func (ch *channel) removeMember(name string) bool {
	for i, m := range ch.members {
		if m == name {
			ch.members = append(ch.members[:i], ch.members[i+1:]...)
			return true
		}
	}
	return false
}
