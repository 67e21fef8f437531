package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
)

// AccountSource is the read side of the ERP used by the bulk sync: paginated
// access to business-partner records.
type AccountSource interface {
	FetchAccounts(ctx context.Context, filters model.SyncFilters, skip, top int) ([]model.ExternalAccountRecord, error)
}

// FetchAccounts reads one page of business partners, newest-first paging via
// $skip/$top.
func (c *Client) FetchAccounts(ctx context.Context, filters model.SyncFilters, skip, top int) ([]model.ExternalAccountRecord, error) {
	sessionID, err := c.sessions.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ERP session: %w", err)
	}

	params := url.Values{}
	params.Set("$select", "CardCode,CardName,FederalTaxID,EmailAddress,Phone1,Valid,GroupCode")
	params.Set("$skip", fmt.Sprintf("%d", skip))
	params.Set("$top", fmt.Sprintf("%d", top))

	var conditions []string
	if filters.GroupCode != nil {
		conditions = append(conditions, fmt.Sprintf("GroupCode eq %d", *filters.GroupCode))
	}
	if filters.OnlyActive {
		conditions = append(conditions, "Valid eq 'Y'")
	}
	if filters.CardCode != "" {
		conditions = append(conditions, fmt.Sprintf("CardCode eq '%s'", filters.CardCode))
	}
	if len(conditions) > 0 {
		params.Set("$filter", strings.Join(conditions, " and "))
	}

	reqURL := c.cfg.ERP.BaseURL + "/BusinessPartners?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "B1SESSION", Value: sessionID})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch business partners: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("erp returned status %d: %s", resp.StatusCode, string(body))
	}

	var page model.ERPPartnersResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return page.Value, nil
}
