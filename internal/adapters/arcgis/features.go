package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/obs"
)

type queryResponse struct {
	ObjectIDFieldName string           `json:"objectIdFieldName"`
	Features          []domain.Feature `json:"features"`
}

type editResponse struct {
	UpdateResults []editResult `json:"updateResults"`
}

type editResult struct {
	ObjectID json.Number `json:"objectId"`
	Success  bool        `json:"success"`
	Error    *struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// QueryFeatures returns every record of the layer (/{layer}/query, where 1=1).
func (c *Client) QueryFeatures(ctx context.Context, layer domain.LayerRef) (_ domain.FeatureSet, err error) {
	defer obs.Time(ctx, "arcgis.QueryFeatures")(&err)

	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", "*")
	params.Set("returnGeometry", "false")

	var qr queryResponse
	if err := c.get(ctx, layer.URL()+"/query", params, &qr); err != nil {
		return domain.FeatureSet{}, fmt.Errorf("query features %s: %w", layer.URL(), err)
	}

	field := qr.ObjectIDFieldName
	if field == "" {
		field = "OBJECTID"
	}

	return domain.FeatureSet{ObjectIDField: field, Features: qr.Features}, nil
}

// UpdateFeatures submits edited records (/{layer}/updateFeatures). It is never retried.
func (c *Client) UpdateFeatures(
	ctx context.Context,
	layer domain.LayerRef,
	features []domain.Feature,
) (_ []domain.EditResult, err error) {
	defer obs.Time(ctx, "arcgis.UpdateFeatures")(&err)

	if len(features) == 0 {
		return nil, errors.New("update features: no features to update")
	}

	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("update features: marshal features: %w", err)
	}

	params := url.Values{}
	params.Set("features", string(payload))
	params.Set("rollbackOnFailure", "true")

	req, err := c.newRequest(ctx, http.MethodPost, layer.URL()+"/updateFeatures", params)
	if err != nil {
		return nil, fmt.Errorf("update features: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("update features %s: %w", layer.URL(), err)
	}

	var er editResponse
	if err := decode(resp, &er); err != nil {
		return nil, fmt.Errorf("update features %s: %w", layer.URL(), err)
	}

	out := make([]domain.EditResult, 0, len(er.UpdateResults))
	for _, r := range er.UpdateResults {
		id, err := r.ObjectID.Int64()
		if err != nil {
			return nil, fmt.Errorf("update features %s: edit result has bad objectId %q: %w", layer.URL(), r.ObjectID, err)
		}
		res := domain.EditResult{ObjectID: id, Success: r.Success}
		if r.Error != nil {
			res.Error = fmt.Sprintf("%d: %s", r.Error.Code, r.Error.Description)
		}
		out = append(out, res)
	}

	return out, nil
}
