package domain

// Wire event names. Inbound and outbound frames share the same names.
const (
	EventNewMessage      = "NEW_MESSAGE"
	EventNewMessageAlert = "NEW_MESSAGE_ALERT"
	EventStartTyping     = "START_TYPING"
	EventStopTyping      = "STOP_TYPING"
	EventMessageReaction = "MESSAGE_REACTION"
	EventMessageSeen     = "MESSAGE_SEEN"
	EventOnlineUsers     = "ONLINE_USERS"
	EventChatJoined      = "CHAT_JOINED"
	EventChatLeaved      = "CHAT_LEAVED"

	EventCallRequest  = "CALL_REQUEST"
	EventCallAccepted = "CALL_ACCEPTED"
	EventCallRejected = "CALL_REJECTED"
	EventCallEnded    = "CALL_ENDED"
	EventICECandidate = "ICE_CANDIDATE"
	EventWebRTCOffer  = "WEBRTC_OFFER"
	EventWebRTCAnswer = "WEBRTC_ANSWER"

	EventError = "ERROR"
)

var inbound = map[string]struct{}{
	EventNewMessage:      {},
	EventStartTyping:     {},
	EventStopTyping:      {},
	EventMessageReaction: {},
	EventMessageSeen:     {},
	EventChatJoined:      {},
	EventChatLeaved:      {},
	EventCallRequest:     {},
	EventCallAccepted:    {},
	EventCallRejected:    {},
	EventCallEnded:       {},
	EventICECandidate:    {},
	EventWebRTCOffer:     {},
	EventWebRTCAnswer:    {},
}

// IsInbound reports whether clients may send event.
func IsInbound(event string) bool {
	_, ok := inbound[event]
	return ok
}
