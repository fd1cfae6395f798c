package core

import "github.com/avilov/codemesh/internal/domain"

// subscriber implements Subscriber by pairing meta + transport.
type subscriber struct {
	meta *domain.Participant
	conn SignalConnection
}

func NewSubscriber(meta *domain.Participant, conn SignalConnection) Subscriber {
	return &subscriber{meta: meta, conn: conn}
}

func (s *subscriber) Meta() *domain.Participant { return s.meta }
func (s *subscriber) Signal() SignalConnection  { return s.conn }
