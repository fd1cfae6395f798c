package domain

import "fmt"

// Topic is a room-scoped broadcast channel name. One room uses several
// independent topics, one per feature, so code sync, timer and call
// signaling never share a delivery stream.
type Topic string

const MaxTopicLen = 128

func (t Topic) Valid() bool {
	return len(t) > 0 && len(t) <= MaxTopicLen
}

// CollabRoomTopic carries code snapshots, cursor markers and chat for
// one room.
func CollabRoomTopic(roomID string) Topic {
	return Topic(fmt.Sprintf("collab-room:%s", roomID))
}

// TimerTopic carries owner-authoritative countdown state for one
// submission.
func TimerTopic(submissionID string) Topic {
	return Topic(fmt.Sprintf("timer:%s", submissionID))
}

// CallTopic carries peer-mesh call signaling for one room.
func CallTopic(roomID string) Topic {
	return Topic(fmt.Sprintf("webrtc:%s", roomID))
}
