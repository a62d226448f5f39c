package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/creatorpay-backend/pkg/enums"
	"github.com/angelmondragon/creatorpay-backend/pkg/outbox/payloads"
)

// DecoderFunc turns an envelope's data field into a typed payload.
type DecoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
}

// NewPayoutDecoders registers the v1 decoders for every payout event.
func NewPayoutDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventCreatorPayoutCredited, 1, decodeInto(func() interface{} { return &payloads.CreatorPayoutCreditedEvent{} }))
	reg.Register(enums.EventCampaignPaymentsReleased, 1, decodeInto(func() interface{} { return &payloads.CampaignPaymentsReleasedEvent{} }))
	reg.Register(enums.EventCampaignDepositRecorded, 1, decodeInto(func() interface{} { return &payloads.CampaignDepositRecordedEvent{} }))
	reg.Register(enums.EventWalletWithdrawalRequested, 1, decodeInto(func() interface{} { return &payloads.WalletWithdrawalRequestedEvent{} }))
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

func decodeInto(factory func() interface{}) DecoderFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		target := factory()
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}
