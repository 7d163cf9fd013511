package live

import (
	"context"

	"github.com/nasermirzaei89/backtalk/discuss"
)

// Event names are part of the client protocol; renaming them breaks
// deployed frontends.
const (
	EventNewComment     = "newComment"
	EventNewReply       = "newReply"
	EventCommentUpdated = "commentUpdated"
)

// Announcer translates committed discussion mutations into room events.
type Announcer struct {
	hub *Hub
}

var _ discuss.Broadcaster = (*Announcer)(nil)

func NewAnnouncer(hub *Hub) *Announcer {
	return &Announcer{hub: hub}
}

func (a *Announcer) CommentCreated(_ context.Context, articlePublicID string, post *discuss.Post) {
	a.hub.Publish(articlePublicID, Event{Name: EventNewComment, Payload: post})
}

type replyPayload struct {
	ParentID string        `json:"parentId"`
	Reply    *discuss.Post `json:"reply"`
}

// ReplyCreated carries the parent id alongside the reply so clients can
// splice it into the right subtree.
func (a *Announcer) ReplyCreated(_ context.Context, articlePublicID, parentPublicID string, post *discuss.Post) {
	a.hub.Publish(articlePublicID, Event{
		Name:    EventNewReply,
		Payload: replyPayload{ParentID: parentPublicID, Reply: post},
	})
}

func (a *Announcer) CommentUpdated(_ context.Context, articlePublicID string, post *discuss.Post) {
	a.hub.Publish(articlePublicID, Event{Name: EventCommentUpdated, Payload: post})
}
