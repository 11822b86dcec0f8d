package dispatch

import (
	"github.com/qg-furioso/realtime/pkg/protocol"
	"github.com/qg-furioso/realtime/pkg/state"
)

// Typed entry points for the REST layer. Business handlers call these after
// completing a mutation; the subsystem only forwards, it never validates
// the business event.

func (d *Dispatcher) ContentPublished(p protocol.ContentPublishedPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventContentPublished, p))
}

func (d *Dispatcher) SurveyPublished(p protocol.SurveyPublishedPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventSurveyPublished, p))
}

func (d *Dispatcher) MatchCreated(p protocol.MatchPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventMatchCreated, p))
}

func (d *Dispatcher) MatchUpdated(p protocol.MatchPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventMatchUpdated, p))
}

func (d *Dispatcher) MatchStarted(p protocol.MatchPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventMatchStarted, p))
}

func (d *Dispatcher) MatchEnded(p protocol.MatchPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventMatchEnded, p))
}

func (d *Dispatcher) StreamOnline(p protocol.StreamPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventStreamOnline, p))
}

func (d *Dispatcher) StreamOffline(p protocol.StreamPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventStreamOffline, p))
}

func (d *Dispatcher) ShopItemAdded(p protocol.ShopItemPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventShopItemAdded, p))
}

func (d *Dispatcher) ShopItemUpdated(p protocol.ShopItemPayload) {
	d.Broadcast(protocol.MustNew(protocol.EventShopItemUpdated, p))
}

func (d *Dispatcher) RewardEarned(userID string, p protocol.RewardEarnedPayload) {
	d.SendToUser(userID, protocol.MustNew(protocol.EventRewardEarned, p))
}

func (d *Dispatcher) RedemptionStatusChanged(userID string, p protocol.RedemptionStatusPayload) {
	d.SendToUser(userID, protocol.MustNew(protocol.EventRedemptionStatusChanged, p))
}

// GlobalChannel mirrors SendToChannel on the implicit channel every
// connection subscribes to at register time.
func (d *Dispatcher) GlobalChannel(env protocol.Envelope) {
	d.SendToChannel(state.ChannelGlobal, env)
}
