package resolver

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"crmsync/internal/models"
)

type stubLookup struct {
	origins  map[string]uint64
	stages   map[string]models.Stage
	contacts map[string]uint64
	calls    map[string]int
	sizes    []int
}

func (s *stubLookup) hit(name string, ids []string) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
	s.sizes = append(s.sizes, len(ids))
}

func (s *stubLookup) FindOriginsByClintIDsTx(_ context.Context, _ *gorm.DB, ids []string) ([]models.Origin, error) {
	s.hit("origins", ids)
	var out []models.Origin
	for _, id := range ids {
		if local, ok := s.origins[id]; ok {
			out = append(out, models.Origin{ID: local, ClintID: id})
		}
	}
	return out, nil
}

func (s *stubLookup) FindStagesByClintIDsTx(_ context.Context, _ *gorm.DB, ids []string) ([]models.Stage, error) {
	s.hit("stages", ids)
	var out []models.Stage
	for _, id := range ids {
		if st, ok := s.stages[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *stubLookup) FindContactsByClintIDsTx(_ context.Context, _ *gorm.DB, ids []string) ([]models.Contact, error) {
	s.hit("contacts", ids)
	var out []models.Contact
	for _, id := range ids {
		if local, ok := s.contacts[id]; ok {
			out = append(out, models.Contact{ID: local, ClintID: id})
		}
	}
	return out, nil
}

func TestStages_OneQueryPerPageWithOrigin(t *testing.T) {
	originID := uint64(3)
	originClintID := "o-3"
	lookup := &stubLookup{stages: map[string]models.Stage{
		"s-1": {ID: 11, ClintID: "s-1", OriginID: &originID, OriginClintID: &originClintID},
	}}
	r := New(lookup)

	ids := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		ids = append(ids, "s-1", "")
	}
	m, err := r.Stages(context.Background(), nil, ids)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if lookup.calls["stages"] != 1 {
		t.Fatalf("queries=%d want=1", lookup.calls["stages"])
	}
	ref, ok := m.Resolve("s-1")
	if !ok || ref.LocalID != 11 || ref.OriginID == nil || *ref.OriginID != 3 || ref.OriginClintID != "o-3" {
		t.Fatalf("ref=%+v ok=%v", ref, ok)
	}
	if got := m.LocalID("s-404"); got != nil {
		t.Fatalf("miss=%v want=nil", *got)
	}
}

func TestContacts_ChunksLargeIDSets(t *testing.T) {
	lookup := &stubLookup{contacts: map[string]uint64{"c-0": 1, "c-2499": 2}}
	r := New(lookup)

	ids := make([]string, 0, 2500)
	for i := 0; i < 2500; i++ {
		ids = append(ids, fmt.Sprintf("c-%d", i))
	}
	m, err := r.Contacts(context.Background(), nil, ids)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if lookup.calls["contacts"] != 3 {
		t.Fatalf("queries=%d want=3", lookup.calls["contacts"])
	}
	if lookup.sizes[0] != 1000 || lookup.sizes[2] != 500 {
		t.Fatalf("sizes=%v", lookup.sizes)
	}
	if len(m) != 2 {
		t.Fatalf("len=%d want=2", len(m))
	}
}

func TestOrigins_EmptyInputSkipsQuery(t *testing.T) {
	lookup := &stubLookup{}
	m, err := New(lookup).Origins(context.Background(), nil, []string{"", " "})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if lookup.calls["origins"] != 0 {
		t.Fatalf("queries=%d want=0", lookup.calls["origins"])
	}
	if len(m) != 0 {
		t.Fatalf("len=%d want=0", len(m))
	}
}

func TestDistinct(t *testing.T) {
	got := Distinct([]string{" a", "b", "a", "", "b "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got=%v", got)
	}
}
