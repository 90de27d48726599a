package audit

import "context"

// AlertingStore decorates a Store so every successful Append is fed
// through an AlertEngine in real time, per component M's "on every
// incoming event" evaluation trigger. A failing Evaluate never masks the
// underlying Append result.
type AlertingStore struct {
	Store
	engine *AlertEngine
}

// NewAlertingStore wraps store so appended events are evaluated by engine.
func NewAlertingStore(store Store, engine *AlertEngine) *AlertingStore {
	return &AlertingStore{Store: store, engine: engine}
}

func (s *AlertingStore) Append(ctx context.Context, event Event) (AppendResult, error) {
	result, err := s.Store.Append(ctx, event)
	if err != nil {
		return result, err
	}
	if s.engine != nil {
		event.SequenceNumber = result.SequenceNumber
		event.EventHash = result.EventHash
		_ = s.engine.Evaluate(ctx, &event)
	}
	return result, nil
}
