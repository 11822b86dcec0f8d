package protocol

import (
	"encoding/json"
	"fmt"
)

// Payload shapes, one per event tag. The transport never validates these;
// they are the contract between the emitter and the handler for that type.

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type AuthSuccessPayload struct {
	UserID string `json:"userId"`
}

type AuthFailurePayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ContentPublishedPayload struct {
	ContentID string `json:"contentId"`
	Title     string `json:"title"`
	Slug      string `json:"slug,omitempty"`
}

type SurveyPublishedPayload struct {
	SurveyID   string `json:"surveyId"`
	Title      string `json:"title"`
	CoinReward int    `json:"coinReward,omitempty"`
}

type MatchPayload struct {
	MatchID   string `json:"matchId"`
	Opponent  string `json:"opponent,omitempty"`
	Game      string `json:"game,omitempty"`
	ScoreHome int    `json:"scoreHome,omitempty"`
	ScoreAway int    `json:"scoreAway,omitempty"`
}

type StreamPayload struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

type ShopItemPayload struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	CoinCost int    `json:"coinCost,omitempty"`
}

type RewardEarnedPayload struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type RedemptionStatusPayload struct {
	RedemptionID string `json:"redemptionId"`
	Status       string `json:"status"`
}

// DecodePayload resolves the tagged union: it returns the typed payload
// value for the envelope's event, or an error when the payload does not
// match the shape registered for that tag. Events with no payload contract
// (ping, pong) decode to nil.
func DecodePayload(env Envelope) (any, error) {
	decode := func(dst any) (any, error) {
		if len(env.Payload) == 0 {
			return nil, fmt.Errorf("event %s: missing payload", env.Type)
		}
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return nil, fmt.Errorf("event %s: %w", env.Type, err)
		}
		return dst, nil
	}

	switch env.Type {
	case EventAuthenticate:
		return decode(&AuthenticatePayload{})
	case EventAuthSuccess:
		return decode(&AuthSuccessPayload{})
	case EventAuthFailure:
		return decode(&AuthFailurePayload{})
	case EventError:
		return decode(&ErrorPayload{})
	case EventContentPublished:
		return decode(&ContentPublishedPayload{})
	case EventSurveyPublished:
		return decode(&SurveyPublishedPayload{})
	case EventMatchCreated, EventMatchUpdated, EventMatchStarted, EventMatchEnded:
		return decode(&MatchPayload{})
	case EventStreamOnline, EventStreamOffline:
		return decode(&StreamPayload{})
	case EventShopItemAdded, EventShopItemUpdated:
		return decode(&ShopItemPayload{})
	case EventRewardEarned:
		return decode(&RewardEarnedPayload{})
	case EventRedemptionStatusChanged:
		return decode(&RedemptionStatusPayload{})
	case EventPing, EventPong:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}
