package registry

import (
	"context"

	"github.com/roomforge/themekit/pkg/concurrent"
	"github.com/roomforge/themekit/pkg/theme"
)

// Memory keeps records in process memory. Records are copied on the way in
// and on the way out.
type Memory struct {
	records *concurrent.Map[string, *theme.Record]
}

var _ Store = (*Memory)(nil)

func NewMemory(records ...*theme.Record) *Memory {
	m := &Memory{records: concurrent.NewMap[string, *theme.Record]()}
	for _, rec := range records {
		m.records.Store(rec.ID, normalize(rec))
	}
	return m
}

func (m *Memory) GetTheme(_ context.Context, id string) (*theme.Record, error) {
	rec, ok := m.records.Load(id)
	if !ok {
		return nil, notFound(id)
	}
	return rec.Clone(), nil
}

func (m *Memory) ListThemes(_ context.Context) ([]*theme.Record, error) {
	var out []*theme.Record
	m.records.Range(func(_ string, rec *theme.Record) bool {
		out = append(out, rec.Clone())
		return true
	})
	return out, nil
}

func (m *Memory) UpdateThemeConfig(_ context.Context, id string, cfg *theme.Config) error {
	updated := m.records.Update(id, func(current *theme.Record, exists bool) (*theme.Record, bool) {
		if !exists {
			return nil, false
		}
		next := current.Clone()
		next.Config = cfg.Clone()
		if next.Config == nil {
			next.Config = theme.NewConfig()
		}
		return next, true
	})
	if !updated {
		return notFound(id)
	}
	return nil
}

func (m *Memory) PutTheme(_ context.Context, rec *theme.Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}
	m.records.Store(rec.ID, normalize(rec))
	return nil
}

func (m *Memory) DeleteTheme(_ context.Context, id string) error {
	if !m.records.Delete(id) {
		return notFound(id)
	}
	return nil
}

// normalize copies rec and makes sure it carries a configuration.
func normalize(rec *theme.Record) *theme.Record {
	c := rec.Clone()
	if c.Config == nil {
		c.Config = theme.NewConfig()
	}
	return c
}
