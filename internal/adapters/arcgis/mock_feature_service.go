package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"storm-truck-count/internal/domain"
	"strconv"
	"strings"
)

// MockLayer is a layer or table held in memory with its records.
type MockLayer struct {
	Ref           domain.LayerRef
	ObjectIDField string
	Features      []domain.Feature
}

// MockItem is a catalog item with the layers and tables of its service.
type MockItem struct {
	Item   domain.Item
	Layers []*MockLayer
	Tables []*MockLayer
}

// MockFeatureService is an in-memory FeatureService that records the calls it receives.
type MockFeatureService struct {
	items map[string]*MockItem
	order []string

	SignInErr error
	UpdateErr error
	// Replaces the acknowledgment of the next updates when set.
	UpdateResults []domain.EditResult

	SignIns     int
	SearchCalls int
	UpdateCalls int
}

func NewMockFeatureService(items ...*MockItem) *MockFeatureService {
	m := &MockFeatureService{items: make(map[string]*MockItem, len(items))}
	for _, it := range items {
		m.items[it.Item.ID] = it
		m.order = append(m.order, it.Item.ID)
	}
	return m
}

func (m *MockFeatureService) SignIn(ctx context.Context) error {
	m.SignIns++
	return m.SignInErr
}

func (m *MockFeatureService) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	it, ok := m.items[itemID]
	if !ok {
		return domain.Item{}, fmt.Errorf("get item %q: %w", itemID, domain.ErrNotFound)
	}
	return it.Item, nil
}

func (m *MockFeatureService) SearchItems(ctx context.Context, title, owner, itemType string) ([]domain.Item, error) {
	m.SearchCalls++

	out := make([]domain.Item, 0)
	for _, id := range m.order {
		it := m.items[id].Item
		if !strings.EqualFold(it.Title, title) {
			continue
		}
		if owner != "" && it.Owner != owner {
			continue
		}
		if itemType != "" && it.Type != itemType {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *MockFeatureService) ItemLayers(ctx context.Context, item domain.Item) (domain.LayerSet, error) {
	it, ok := m.items[item.ID]
	if !ok {
		return domain.LayerSet{}, fmt.Errorf("item layers %q: %w", item.ID, domain.ErrNotFound)
	}

	var out domain.LayerSet
	for _, l := range it.Layers {
		out.Layers = append(out.Layers, l.Ref)
	}
	for _, t := range it.Tables {
		out.Tables = append(out.Tables, t.Ref)
	}
	return out, nil
}

func (m *MockFeatureService) QueryFeatures(ctx context.Context, layer domain.LayerRef) (domain.FeatureSet, error) {
	l, err := m.layer(layer)
	if err != nil {
		return domain.FeatureSet{}, err
	}

	features := make([]domain.Feature, 0, len(l.Features))
	for _, f := range l.Features {
		features = append(features, copyFeature(f))
	}
	return domain.FeatureSet{ObjectIDField: l.ObjectIDField, Features: features}, nil
}

// UpdateFeatures merges the given attributes into stored records matched by object id.
func (m *MockFeatureService) UpdateFeatures(
	ctx context.Context,
	layer domain.LayerRef,
	features []domain.Feature,
) ([]domain.EditResult, error) {
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}

	l, err := m.layer(layer)
	if err != nil {
		return nil, err
	}

	results := make([]domain.EditResult, 0, len(features))
	for _, f := range features {
		id, err := f.ObjectID(l.ObjectIDField)
		if err != nil {
			results = append(results, domain.EditResult{Error: err.Error()})
			continue
		}

		res := domain.EditResult{ObjectID: id, Error: "object not found"}
		for i := range l.Features {
			stored, err := l.Features[i].ObjectID(l.ObjectIDField)
			if err != nil || stored != id {
				continue
			}
			for k, v := range f.Attributes {
				l.Features[i].Attributes[k] = normalize(v)
			}
			res = domain.EditResult{ObjectID: id, Success: true}
			break
		}
		results = append(results, res)
	}

	if m.UpdateResults != nil {
		return m.UpdateResults, nil
	}
	return results, nil
}

func (m *MockFeatureService) layer(ref domain.LayerRef) (*MockLayer, error) {
	for _, id := range m.order {
		it := m.items[id]
		for _, l := range append(append([]*MockLayer{}, it.Layers...), it.Tables...) {
			if l.Ref.URL() == ref.URL() {
				return l, nil
			}
		}
	}
	return nil, fmt.Errorf("layer %s: %w", ref.URL(), domain.ErrNotFound)
}

// normalize stores integers the way the REST service echoes them back.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return json.Number(strconv.Itoa(x))
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	}
	return v
}

func copyFeature(f domain.Feature) domain.Feature {
	attrs := make(map[string]any, len(f.Attributes))
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	return domain.Feature{Attributes: attrs, Geometry: f.Geometry}
}
