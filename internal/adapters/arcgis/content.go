package arcgis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/obs"
	"strconv"
	"strings"
)

type itemResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
	Type  string `json:"type"`
	URL   string `json:"url"`
}

func (r itemResponse) toDomain() domain.Item {
	return domain.Item{ID: r.ID, Title: r.Title, Owner: r.Owner, Type: r.Type, URL: r.URL}
}

type searchResponse struct {
	Total   int            `json:"total"`
	Results []itemResponse `json:"results"`
}

type serviceResponse struct {
	Layers []serviceLayer `json:"layers"`
	Tables []serviceLayer `json:"tables"`
}

type serviceLayer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GetItem fetches a catalog item by id (/sharing/rest/content/items/{id}).
func (c *Client) GetItem(ctx context.Context, itemID string) (_ domain.Item, err error) {
	defer obs.Time(ctx, "arcgis.GetItem")(&err)

	if strings.TrimSpace(itemID) == "" {
		return domain.Item{}, errors.New("get item: item id must be non-empty")
	}

	endpoint := c.rootURL + "/sharing/rest/content/items/" + url.PathEscape(itemID)

	var ir itemResponse
	if err := c.get(ctx, endpoint, nil, &ir); err != nil {
		return domain.Item{}, fmt.Errorf("get item %q: %w", itemID, err)
	}
	if ir.ID == "" {
		return domain.Item{}, fmt.Errorf("get item %q: %w: empty item in response", itemID, domain.ErrNotFound)
	}

	return ir.toDomain(), nil
}

// SearchItems queries the catalog (/sharing/rest/search) for items with the
// given title, owner and type. Results are returned as the service ranks them.
func (c *Client) SearchItems(
	ctx context.Context,
	title string,
	owner string,
	itemType string,
) (_ []domain.Item, err error) {
	defer obs.Time(ctx, "arcgis.SearchItems")(&err)

	if strings.TrimSpace(title) == "" {
		return nil, errors.New("search items: title must be non-empty")
	}

	endpoint := c.rootURL + "/sharing/rest/search"

	params := url.Values{}
	params.Set("q", searchQuery(title, owner, itemType))
	params.Set("num", "100")

	var sr searchResponse
	if err := c.get(ctx, endpoint, params, &sr); err != nil {
		return nil, fmt.Errorf("search items title=%q owner=%q: %w", title, owner, err)
	}

	items := make([]domain.Item, 0, len(sr.Results))
	for _, r := range sr.Results {
		items = append(items, r.toDomain())
	}

	return items, nil
}

func searchQuery(title, owner, itemType string) string {
	terms := []string{"title:" + quote(title)}
	if owner != "" {
		terms = append(terms, "owner:"+quote(owner))
	}
	if itemType != "" {
		terms = append(terms, "type:"+quote(itemType))
	}
	return strings.Join(terms, " AND ")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ItemLayers lists the layers and tables of the item's feature service.
func (c *Client) ItemLayers(ctx context.Context, item domain.Item) (_ domain.LayerSet, err error) {
	defer obs.Time(ctx, "arcgis.ItemLayers")(&err)

	serviceURL := strings.TrimRight(item.URL, "/")
	if serviceURL == "" {
		return domain.LayerSet{}, fmt.Errorf("item layers %q: item has no service url", item.ID)
	}

	var sr serviceResponse
	if err := c.get(ctx, serviceURL, nil, &sr); err != nil {
		return domain.LayerSet{}, fmt.Errorf("item layers %q: %w", item.ID, err)
	}

	out := domain.LayerSet{
		Layers: make([]domain.LayerRef, 0, len(sr.Layers)),
		Tables: make([]domain.LayerRef, 0, len(sr.Tables)),
	}
	for _, l := range sr.Layers {
		out.Layers = append(out.Layers, layerRef(serviceURL, l, domain.KindLayer))
	}
	for _, t := range sr.Tables {
		out.Tables = append(out.Tables, layerRef(serviceURL, t, domain.KindTable))
	}

	return out, nil
}

func layerRef(serviceURL string, l serviceLayer, kind domain.LayerKind) domain.LayerRef {
	name := l.Name
	if name == "" {
		name = kind.String() + " " + strconv.Itoa(l.ID)
	}
	return domain.LayerRef{ServiceURL: serviceURL, ID: l.ID, Name: name, Kind: kind}
}
