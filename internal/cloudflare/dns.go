package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CreateDNSRecord creates a CNAME record pointing name at target and returns
// its identifier. Records created for failover are un-proxied so the edge
// platform stops counting their requests against the metered allowance.
func (c *Client) CreateDNSRecord(ctx context.Context, name, target string, proxied bool) (string, error) {
	body := map[string]any{
		"type":    "CNAME",
		"name":    name,
		"content": target,
		"ttl":     60,
		"proxied": proxied,
	}
	result, err := c.do(ctx, http.MethodPost, "/zones/"+c.zoneID+"/dns_records", body)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return "", fmt.Errorf("decode created dns record: %w", err)
	}
	c.logger.Debug().Str("name", name).Str("target", target).Str("record_id", created.ID).Msg("dns record created")
	return created.ID, nil
}

// DeleteDNSRecord removes a record by identifier. Returns ErrNotFound when
// the record is already gone.
func (c *Client) DeleteDNSRecord(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/zones/"+c.zoneID+"/dns_records/"+id, nil)
	if err != nil {
		return err
	}
	c.logger.Debug().Str("record_id", id).Msg("dns record deleted")
	return nil
}
