package protocol

// EventType identifies one kind of envelope. The set is closed: anything
// outside it is rejected at the decode boundary.
type EventType string

// System events drive the connection lifecycle itself.
const (
	EventAuthenticate EventType = "authenticate"
	EventAuthSuccess  EventType = "authSuccess"
	EventAuthFailure  EventType = "authFailure"
	EventPing         EventType = "ping"
	EventPong         EventType = "pong"
	EventError        EventType = "error"
)

// Content domain.
const (
	EventContentPublished EventType = "contentPublished"
	EventSurveyPublished  EventType = "surveyPublished"
)

// Competitive domain.
const (
	EventMatchCreated EventType = "matchCreated"
	EventMatchUpdated EventType = "matchUpdated"
	EventMatchStarted EventType = "matchStarted"
	EventMatchEnded   EventType = "matchEnded"
)

// Streaming domain.
const (
	EventStreamOnline  EventType = "streamOnline"
	EventStreamOffline EventType = "streamOffline"
)

// Commerce domain.
const (
	EventShopItemAdded   EventType = "shopItemAdded"
	EventShopItemUpdated EventType = "shopItemUpdated"
)

// Personal domain: always targeted at a single user, never broadcast.
const (
	EventRewardEarned            EventType = "rewardEarned"
	EventRedemptionStatusChanged EventType = "redemptionStatusChanged"
)

var knownEvents = map[EventType]struct{}{
	EventAuthenticate:            {},
	EventAuthSuccess:             {},
	EventAuthFailure:             {},
	EventPing:                    {},
	EventPong:                    {},
	EventError:                   {},
	EventContentPublished:        {},
	EventSurveyPublished:         {},
	EventMatchCreated:            {},
	EventMatchUpdated:            {},
	EventMatchStarted:            {},
	EventMatchEnded:              {},
	EventStreamOnline:            {},
	EventStreamOffline:           {},
	EventShopItemAdded:           {},
	EventShopItemUpdated:         {},
	EventRewardEarned:            {},
	EventRedemptionStatusChanged: {},
}

// Known reports whether t is part of the protocol.
func Known(t EventType) bool {
	_, ok := knownEvents[t]
	return ok
}
