package mtproto

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/nextlevelbuilder/tgmon/internal/platform"
)

// Resolve maps a configured group reference to canonical metadata and caches
// the input peer for later history calls.
func (c *Client) Resolve(ctx context.Context, ref platform.GroupRef) (*platform.GroupInfo, error) {
	api := c.apiClient()
	if api == nil {
		return nil, fmt.Errorf("session not connected")
	}

	if ref.Username != "" {
		return c.resolveUsername(ctx, api, ref.Username)
	}
	return c.resolveID(ctx, api, ref.ID)
}

func (c *Client) resolveUsername(ctx context.Context, api *tg.Client, username string) (*platform.GroupInfo, error) {
	username = strings.TrimPrefix(username, "@")
	res, err := api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, wrapFloodWait(fmt.Errorf("resolve @%s: %w", username, err))
	}
	for _, chat := range res.Chats {
		if info, peer := groupInfoFromChat(chat); info != nil {
			c.rememberPeer(info.ID, peer)
			return info, nil
		}
	}
	return nil, fmt.Errorf("@%s is not a group or channel", username)
}

// resolveID scans the account's chat list for the marked id. User sessions
// only see groups they are a member of, so the list is small.
func (c *Client) resolveID(ctx context.Context, api *tg.Client, markedID int64) (*platform.GroupInfo, error) {
	res, err := api.MessagesGetAllChats(ctx, []int64{})
	if err != nil {
		return nil, wrapFloodWait(fmt.Errorf("list chats: %w", err))
	}
	for _, chat := range res.GetChats() {
		if info, peer := groupInfoFromChat(chat); info != nil && info.ID == markedID {
			c.rememberPeer(info.ID, peer)
			return info, nil
		}
	}
	return nil, fmt.Errorf("group %d not found in account chat list", markedID)
}

func groupInfoFromChat(chat tg.ChatClass) (*platform.GroupInfo, tg.InputPeerClass) {
	switch v := chat.(type) {
	case *tg.Channel:
		info := &platform.GroupInfo{
			ID:       markedChannelID(v.ID),
			Title:    v.Title,
			Username: v.Username,
		}
		if n, ok := v.GetParticipantsCount(); ok {
			info.MemberCount = n
		}
		return info, v.AsInputPeer()
	case *tg.Chat:
		return &platform.GroupInfo{
			ID:          markedChatID(v.ID),
			Title:       v.Title,
			MemberCount: v.ParticipantsCount,
		}, &tg.InputPeerChat{ChatID: v.ID}
	default:
		return nil, nil
	}
}

const historyPageSize = 100

// History walks the group history backward from now, returning decoded
// messages newer than stopAt (exclusive), oldest first, at most limit.
func (c *Client) History(ctx context.Context, groupID int64, limit int, stopAt string) ([]*platform.Message, error) {
	api := c.apiClient()
	if api == nil {
		return nil, fmt.Errorf("session not connected")
	}
	peer, ok := c.peerFor(groupID)
	if !ok {
		return nil, fmt.Errorf("group %d not resolved", groupID)
	}

	var out []*platform.Message
	offsetID := 0
walk:
	for limit <= 0 || len(out) < limit {
		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyPageSize,
		})
		if err != nil {
			return out, wrapFloodWait(fmt.Errorf("history %d: %w", groupID, err))
		}
		page, ok := res.(interface {
			GetMessages() []tg.MessageClass
			GetUsers() []tg.UserClass
			GetChats() []tg.ChatClass
		})
		if !ok {
			break
		}
		raws := page.GetMessages()
		if len(raws) == 0 {
			break
		}
		es := entitiesFromSlices(page.GetUsers(), page.GetChats())
		for _, raw := range raws {
			m := decodeMessage(raw, es)
			if m == nil {
				continue
			}
			if stopAt != "" && m.Date <= stopAt {
				break walk
			}
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break walk
			}
		}
		last := raws[len(raws)-1]
		offsetID = last.GetID()
		if len(raws) < historyPageSize {
			break
		}
	}

	// Walked newest-first; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
