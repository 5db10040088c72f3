package mtproto

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/nextlevelbuilder/tgmon/internal/platform"
)

// channelIDOffset maps a raw channel id onto the canonical marked id space
// shared with the Bot API (-100xxxxxxxxxx).
const channelIDOffset = 1_000_000_000_000

func markedChannelID(id int64) int64 { return -channelIDOffset - id }
func markedChatID(id int64) int64    { return -id }

// entitySet is a lookup of users/chats/channels attached to an update or a
// history page.
type entitySet struct {
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func entitiesFromUpdate(e tg.Entities) *entitySet {
	return &entitySet{users: e.Users, chats: e.Chats, channels: e.Channels}
}

func entitiesFromSlices(users []tg.UserClass, chats []tg.ChatClass) *entitySet {
	es := &entitySet{
		users:    make(map[int64]*tg.User),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			es.users[user.ID] = user
		}
	}
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			es.chats[v.ID] = v
		case *tg.Channel:
			es.channels[v.ID] = v
		}
	}
	return es
}

// decodeMessage converts a raw message into the canonical event shape.
// Service messages (joins, pins) decode to nil.
func decodeMessage(raw tg.MessageClass, es *entitySet) *platform.Message {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return nil
	}

	groupID, ok := markedPeerID(msg.PeerID)
	if !ok {
		return nil
	}

	m := &platform.Message{
		ID:      int64(msg.ID),
		GroupID: groupID,
		Date:    platform.ISOTime(time.Unix(int64(msg.Date), 0)),
	}

	if msg.Message != "" {
		text := msg.Message
		m.Text = &text
	}

	m.SenderID, m.SenderName = decodeSender(msg, es)

	if media, ok := msg.GetMedia(); ok {
		if tag := classifyMedia(media); tag != "" {
			m.MediaType = &tag
		}
	}
	if fwd, ok := msg.GetFwdFrom(); ok {
		if origin := forwardOrigin(fwd); origin != "" {
			m.ForwardFrom = &origin
		}
	}
	if reply, ok := msg.GetReplyTo(); ok {
		if id := reply.GetReplyToMsgID(); id != 0 {
			rid := int64(id)
			m.ReplyToID = &rid
		}
	}
	return m
}

// markedPeerID converts a peer into the canonical group id. User peers are
// not groups and report false.
func markedPeerID(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return markedChannelID(p.ChannelID), true
	case *tg.PeerChat:
		return markedChatID(p.ChatID), true
	default:
		return 0, false
	}
}

// decodeSender derives the sender id and display name. Users get first+last
// name, falling back to the handle, then the stringified id; anonymous
// channel posts carry the channel title and a nil id.
func decodeSender(msg *tg.Message, es *entitySet) (*int64, string) {
	from, ok := msg.GetFromID()
	if !ok {
		// Anonymous channel post: name the channel itself.
		if p, ok := msg.PeerID.(*tg.PeerChannel); ok {
			if ch := es.channels[p.ChannelID]; ch != nil {
				return nil, ch.Title
			}
		}
		return nil, ""
	}

	switch p := from.(type) {
	case *tg.PeerUser:
		id := p.UserID
		name := strconv.FormatInt(id, 10)
		if u := es.users[id]; u != nil {
			if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
				name = full
			} else if u.Username != "" {
				name = u.Username
			}
		}
		return &id, name
	case *tg.PeerChannel:
		if ch := es.channels[p.ChannelID]; ch != nil {
			return nil, ch.Title
		}
		return nil, "channel:" + strconv.FormatInt(p.ChannelID, 10)
	default:
		return nil, ""
	}
}

// classifyMedia tags the media payload. Only metadata is kept; payloads are
// never downloaded.
func classifyMedia(media tg.MessageMediaClass) string {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaWebPage:
		return "webpage"
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return "document"
		}
		for _, attr := range doc.Attributes {
			switch attr.(type) {
			case *tg.DocumentAttributeVideo:
				return "video"
			case *tg.DocumentAttributeAudio:
				return "audio"
			case *tg.DocumentAttributeSticker:
				return "sticker"
			}
		}
		if doc.MimeType != "" {
			return "document (" + doc.MimeType + ")"
		}
		return "document"
	default:
		name := fmt.Sprintf("%T", media)
		return strings.ToLower(strings.TrimPrefix(name, "*tg.MessageMedia"))
	}
}

// forwardOrigin renders the forward header as a display descriptor:
// the plain name when present, plus "user:<id>" or "channel:<id>" when the
// origin peer is known, joined with " / ".
func forwardOrigin(fwd tg.MessageFwdHeader) string {
	var parts []string
	if name, ok := fwd.GetFromName(); ok && name != "" {
		parts = append(parts, name)
	}
	if from, ok := fwd.GetFromID(); ok {
		switch p := from.(type) {
		case *tg.PeerUser:
			parts = append(parts, "user:"+strconv.FormatInt(p.UserID, 10))
		case *tg.PeerChannel:
			parts = append(parts, "channel:"+strconv.FormatInt(p.ChannelID, 10))
		}
	}
	return strings.Join(parts, " / ")
}

// registerHandlers wires the update dispatcher to the session handlers.
// Handler errors never propagate: one bad update must not kill the stream.
func (c *Client) registerHandlers(d tg.UpdateDispatcher) {
	onNew := func(raw tg.MessageClass, es *entitySet) error {
		if c.handlers.OnNewMessage == nil {
			return nil
		}
		if m := decodeMessage(raw, es); m != nil {
			c.handlers.OnNewMessage(m)
		}
		return nil
	}
	onEdit := func(raw tg.MessageClass) error {
		if c.handlers.OnEditMessage == nil {
			return nil
		}
		msg, ok := raw.(*tg.Message)
		if !ok {
			return nil
		}
		groupID, ok := markedPeerID(msg.PeerID)
		if !ok {
			return nil
		}
		var mediaType *string
		if media, ok := msg.GetMedia(); ok {
			if tag := classifyMedia(media); tag != "" {
				mediaType = &tag
			}
		}
		c.handlers.OnEditMessage(groupID, int64(msg.ID), msg.Message, mediaType)
		return nil
	}

	d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return onNew(u.Message, entitiesFromUpdate(e))
	})
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return onNew(u.Message, entitiesFromUpdate(e))
	})
	d.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		return onEdit(u.Message)
	})
	d.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return onEdit(u.Message)
	})
	d.OnDeleteMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteMessages) error {
		if c.handlers.OnDeleteMessages != nil {
			c.handlers.OnDeleteMessages(0, intsTo64(u.Messages), false)
		}
		return nil
	})
	d.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		if c.handlers.OnDeleteMessages != nil {
			c.handlers.OnDeleteMessages(markedChannelID(u.ChannelID), intsTo64(u.Messages), true)
		}
		return nil
	})

	slog.Debug("update handlers registered")
}

func intsTo64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
