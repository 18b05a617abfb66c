package melihttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
)

type Client struct {
	baseURL string
	tokens  meli.TokenProvider
	httpc   *http.Client
}

func New(baseURL string, tokens meli.TokenProvider) *Client {
	if baseURL == "" {
		baseURL = "https://api.mercadolibre.com"
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type snapshotResp struct {
	ID           json.Number `json:"id"`
	TrackingCode string      `json:"tracking_number"`
	Status       string      `json:"status"`
	Substatus    string      `json:"substatus"`
	StatusHistory struct {
		DateCreated      string `json:"date_created"`
		DateReadyToShip  string `json:"date_ready_to_ship"`
		DateFirstPrinted string `json:"date_first_printed"`
		DateHandling     string `json:"date_handling"`
		DateShipped      string `json:"date_shipped"`
		DateDelivered    string `json:"date_delivered"`
		DateNotDelivered string `json:"date_not_delivered"`
		DateCancelled    string `json:"date_cancelled"`
	} `json:"status_history"`
	LastUpdated string `json:"last_updated"`
}

type historyEntryResp struct {
	ID        json.Number `json:"id"`
	Date      string      `json:"date"`
	Status    string      `json:"status"`
	Substatus string      `json:"substatus"`
	Comment   string      `json:"comment"`
}

type trackingResp struct {
	Checkpoints []struct {
		Date        string `json:"date"`
		Description string `json:"description"`
	} `json:"checkpoints"`
}

type orderResp struct {
	Shipping struct {
		ID json.Number `json:"id"`
	} `json:"shipping"`
}

func (c *Client) GetSnapshot(ctx context.Context, accountID uint64, externalID string) (*meli.Snapshot, error) {
	var r snapshotResp
	err := c.getJSON(ctx, accountID, "/shipments/"+url.PathEscape(externalID), &r)
	if err != nil {
		var apiErr *meli.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	h := r.StatusHistory
	return &meli.Snapshot{
		ID:               r.ID.String(),
		Status:           r.Status,
		Substatus:        r.Substatus,
		DateCreated:      parseTime(h.DateCreated),
		DateReadyToShip:  parseTime(h.DateReadyToShip),
		DateFirstPrinted: parseTime(h.DateFirstPrinted),
		DateHandling:     parseTime(h.DateHandling),
		DateShipped:      parseTime(h.DateShipped),
		DateDelivered:    parseTime(h.DateDelivered),
		DateNotDelivered: parseTime(h.DateNotDelivered),
		DateCancelled:    parseTime(h.DateCancelled),
		LastUpdated:      parseTime(r.LastUpdated),
	}, nil
}

func (c *Client) GetHistory(ctx context.Context, accountID uint64, externalID string) ([]meli.RawHistoryEntry, error) {
	var rows []historyEntryResp
	err := c.getJSON(ctx, accountID, "/shipments/"+url.PathEscape(externalID)+"/history", &rows)
	if err != nil {
		var apiErr *meli.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			// Отсутствие фида истории — штатный случай, дальше сработает
			// синтез из snapshot.
			return nil, nil
		}
		return nil, err
	}

	out := make([]meli.RawHistoryEntry, 0, len(rows))
	for _, row := range rows {
		e := meli.RawHistoryEntry{
			RemoteID:  row.ID.String(),
			Date:      parseTime(row.Date),
			Status:    row.Status,
			Substatus: row.Substatus,
		}
		if e.RemoteID == "" || e.RemoteID == "0" {
			e.RemoteID = ""
		}
		if row.Comment != "" {
			cm := row.Comment
			e.Note = &cm
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) GetCheckpoints(ctx context.Context, accountID uint64, externalID string) (*meli.RawTracking, error) {
	var r trackingResp
	err := c.getJSON(ctx, accountID, "/shipments/"+url.PathEscape(externalID)+"/tracking", &r)
	if err != nil {
		var apiErr *meli.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	out := &meli.RawTracking{}
	for _, cp := range r.Checkpoints {
		out.Checkpoints = append(out.Checkpoints, meli.Checkpoint{
			Date:        parseTime(cp.Date),
			Description: cp.Description,
		})
	}
	return out, nil
}

func (c *Client) ResolveShipmentIDFromOrder(ctx context.Context, accountID uint64, orderID string) (string, error) {
	var r orderResp
	err := c.getJSON(ctx, accountID, "/orders/"+url.PathEscape(orderID), &r)
	if err != nil {
		var apiErr *meli.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	id := r.Shipping.ID.String()
	if id == "0" {
		id = ""
	}
	return id, nil
}

func (c *Client) getJSON(ctx context.Context, accountID uint64, path string, dst any) error {
	tok, err := c.tokens.GetCredential(ctx, accountID)
	if err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &meli.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.Wrap(err, fmt.Sprintf("decode %s", path))
	}
	return nil
}

// Даты платформа отдаёт в нескольких форматах; непарсибельное = nil,
// решение "выбрасывать или нет" принимает нормализатор.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
