package flipbook

import (
	"context"

	"github.com/local/flipbook/internal/store"
)

type redisStatusAdapter struct{ s *store.RedisStatus }

// NewStatusAdapter exposes a Redis status store as a StatusStore.
func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, id string, st LoadStatus) error {
	return a.s.Set(ctx, id, toRecord(st))
}

func (a *redisStatusAdapter) Get(ctx context.Context, id string) (LoadStatus, bool, error) {
	rec, ok, err := a.s.Get(ctx, id)
	if !ok || err != nil {
		return LoadStatus{}, ok, err
	}
	return fromRecord(rec), true, nil
}

func (a *redisStatusAdapter) Delete(ctx context.Context, id string) error {
	return a.s.Delete(ctx, id)
}

func toRecord(st LoadStatus) store.Status {
	return store.Status{
		Status:     string(st.Status),
		Progress:   st.Progress,
		Message:    st.Message,
		Generation: st.Generation,
		Start:      st.Start,
		End:        st.End,
		Metadata:   st.Metadata,
	}
}

func fromRecord(rec store.Status) LoadStatus {
	return LoadStatus{
		Status:     Status(rec.Status),
		Progress:   rec.Progress,
		Message:    rec.Message,
		Generation: rec.Generation,
		Start:      rec.Start,
		End:        rec.End,
		Metadata:   rec.Metadata,
	}
}
