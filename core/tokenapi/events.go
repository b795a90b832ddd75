// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package tokenapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3labs/sse/v2"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/log"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/core/tokendb"
)

// allTopics are the supported event stream topics.
var allTopics = []tokendb.EventType{
	tokendb.EventApproval,
	tokendb.EventTransfer,
	tokendb.EventMint,
	tokendb.EventBurn,
}

// EventSource is the ledger event subscription capability required by the streamer.
type EventSource interface {
	// SubscribeEvents registers a subscriber that is called with every
	// ledger event in commit order.
	SubscribeEvents(fn func(tokendb.Event))
}

// NewEventStreamer returns a new event streamer publishing the source's
// ledger events to server-sent event subscribers.
func NewEventStreamer(source EventSource) *EventStreamer {
	s := &EventStreamer{
		server:         sse.New(),
		streamsByTopic: make(map[tokendb.EventType][]string),
	}

	source.SubscribeEvents(s.publish)

	return s
}

// EventStreamer publishes ledger events to server-sent event subscribers.
// Each connection gets its own stream serving only the topics it requested,
// so subscribers only ever see events committed after they connected.
type EventStreamer struct {
	// Immutable state
	server *sse.Server

	// Mutable state
	mu             sync.Mutex
	lastStreamID   int
	streamsByTopic map[tokendb.EventType][]string
}

// Close closes the underlying sse server, disconnecting all subscribers.
func (s *EventStreamer) Close() {
	s.server.Close()
}

// handleEvents is the http handler for the event stream endpoint. It blocks
// streaming events to the client until the client disconnects or the
// streamer is closed.
func (s *EventStreamer) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := log.WithTopic(r.Context(), "tokenapi")

	topics, err := parseTopics(r.URL.Query()["topics"])
	if err != nil {
		writeError(ctx, w, "events", err)
		return
	}

	streamID := s.addStream(topics)
	defer s.removeStream(streamID)

	// Point the sse server at this connection's stream.
	query := r.URL.Query()
	query.Set("stream", streamID)
	r.URL.RawQuery = query.Encode()

	sseSubscribers.Inc()
	defer sseSubscribers.Dec()

	log.Debug(ctx, "Event stream subscriber connected", z.Str("stream_id", streamID))

	s.server.ServeHTTP(w, r)
}

// publish marshals the ledger event and publishes it to all streams
// subscribed to its topic. It is called synchronously on ledger commit,
// the sse server buffers per subscriber.
func (s *EventStreamer) publish(e tokendb.Event) {
	data, err := json.Marshal(eventJSON{
		Type:    string(e.Type),
		Owner:   hexOrEmpty(e.Owner),
		Spender: hexOrEmpty(e.Spender),
		From:    hexOrEmpty(e.From),
		To:      hexOrEmpty(e.To),
		Value:   e.Value.Dec(),
	})
	if err != nil {
		return // Unreachable, eventJSON always marshals.
	}

	for _, streamID := range s.streamIDs(e.Type) {
		// TryPublish drops the event when the stream buffer is full, a
		// slow subscriber may not block ledger commits.
		_ = s.server.TryPublish(streamID, &sse.Event{
			Event: []byte(e.Type),
			Data:  data,
		})
	}
}

// addStream creates a new stream subscribed to the topics and returns its id.
func (s *EventStreamer) addStream(topics []tokendb.EventType) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastStreamID++
	streamID := strconv.Itoa(s.lastStreamID)

	s.server.CreateStream(streamID)

	for _, topic := range topics {
		s.streamsByTopic[topic] = append(s.streamsByTopic[topic], streamID)
	}

	return streamID
}

// removeStream removes the stream from the server and all topics.
func (s *EventStreamer) removeStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server.RemoveStream(streamID)

	for topic, streamIDs := range s.streamsByTopic {
		var remaining []string

		for _, id := range streamIDs {
			if id != streamID {
				remaining = append(remaining, id)
			}
		}

		s.streamsByTopic[topic] = remaining
	}
}

// streamIDs returns the ids of all streams subscribed to the topic.
func (s *EventStreamer) streamIDs(topic tokendb.EventType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.streamsByTopic[topic]
}

// parseTopics parses and validates the topics query parameters,
// defaulting to all topics when none were requested.
func parseTopics(topics []string) ([]tokendb.EventType, error) {
	if len(topics) == 0 {
		return allTopics, nil
	}

	var resp []tokendb.EventType

	for _, topic := range topics {
		var known bool

		for _, typ := range allTopics {
			if topic == string(typ) {
				known = true
				break
			}
		}

		if !known {
			return nil, apiError{
				StatusCode: http.StatusBadRequest,
				Message:    "unknown event topic",
				Failure:    failureBadRequest,
				Err:        errors.New("unknown event topic", z.Str("topic", topic)),
			}
		}

		resp = append(resp, tokendb.EventType(topic))
	}

	return resp, nil
}

// hexOrEmpty returns the hex encoded address or an empty string for the
// zero address so unset event fields are omitted from the wire format.
func hexOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}

	return addr.Hex()
}

// eventJSON is the wire format of a ledger event.
type eventJSON struct {
	Type    string `json:"type"`
	Owner   string `json:"owner,omitempty"`
	Spender string `json:"spender,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Value   string `json:"value"`
}
