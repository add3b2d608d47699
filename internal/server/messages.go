package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/types"
)

// Live topics a client can subscribe to.
const (
	TopicFeed    = "feed"
	TopicJournal = "journal"
	TopicFriends = "friends"
	TopicSession = "session"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
}

type Subscribe struct {
	Topic string `json:"topic"`
	// WindowStart pins the start of the feed window. Defaults to 24 hours
	// before the subscription is opened.
	WindowStart *time.Time `json:"window_start,omitempty"`
}

type Unsubscribe struct {
	Topic string `json:"topic"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Snapshot     *Snapshot     `json:"snapshot,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Snapshot struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type Notification struct {
	Session           *types.SessionState `json:"session,omitempty"`
	SubscriptionError *SubscriptionError  `json:"subscription_error,omitempty"`
}

type SubscriptionError struct {
	Topic   string `json:"topic"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrUnknownTopic(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "unknown topic",
		},
	}
}

func ErrNotSubscribed(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "subscription not found",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func SnapshotMessage(topic string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Snapshot: &Snapshot{
			Topic: topic,
			Data:  data,
		},
	}
}

func SessionMessage(state types.SessionState) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Session: &state,
		},
	}
}

func SubscriptionErrorMessage(topic string, err error) *ServerMessage {
	msg := "subscription ended"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			SubscriptionError: &SubscriptionError{
				Topic:   topic,
				Code:    apperr.CodeOf(err),
				Message: msg,
			},
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
