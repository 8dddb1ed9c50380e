package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Catalog entry of the hosted data service.
type Item struct {
	ID    string
	Title string
	Owner string
	Type  string
	URL   string
}

type LayerKind string

func (k LayerKind) String() string { return string(k) }

const (
	KindLayer LayerKind = "layer"
	KindTable LayerKind = "table"
)

// One layer or table inside an item's feature service.
type LayerRef struct {
	ServiceURL string
	ID         int
	Name       string
	Kind       LayerKind
}

// URL of the layer endpoint, e.g. https://.../FeatureServer/0.
func (l LayerRef) URL() string {
	return l.ServiceURL + "/" + strconv.Itoa(l.ID)
}

// Layers and tables contained in an item's service, in service order.
type LayerSet struct {
	Layers []LayerRef
	Tables []LayerRef
}

// One row of attribute data in a hosted layer/table.
// Numeric attributes decode as json.Number so integers stay exact.
type Feature struct {
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// Records currently stored in a layer.
type FeatureSet struct {
	ObjectIDField string
	Features      []Feature
}

// Return the integer object id stored under field.
func (f Feature) ObjectID(field string) (int64, error) {
	v, ok := f.Attributes[field]
	if !ok {
		return 0, fmt.Errorf("feature has no %q attribute", field)
	}

	switch id := v.(type) {
	case json.Number:
		return id.Int64()
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) {
			return 0, fmt.Errorf("feature attribute %q is not an integer: %v", field, id)
		}
		return int64(id), nil
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	}

	return 0, fmt.Errorf("feature attribute %q has non-integer type %T", field, v)
}

// The single record a run overwrites.
type TargetRecord struct {
	Item          Item
	Layer         LayerRef
	ObjectIDField string
	Feature       Feature
}

// Outcome of one feature edit as acknowledged by the service.
type EditResult struct {
	ObjectID int64
	Success  bool
	Error    string
}

func (r EditResult) String() string {
	if r.Error != "" {
		return fmt.Sprintf("objectId=%d success=%t error=%q", r.ObjectID, r.Success, r.Error)
	}
	return fmt.Sprintf("objectId=%d success=%t", r.ObjectID, r.Success)
}
