package supabase

import (
	"context"
	"encoding/json"

	"github.com/wallyhq/go-account"
)

// restHeaders applies the schema scope and representation preference the
// resource store expects on every write.
func (c *Client) restHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization":   "Bearer " + accessToken,
		"Accept-Profile":  c.cfg.Schema,
		"Content-Profile": c.cfg.Schema,
		"Prefer":          "return=representation",
	}
}

// CreateTenant provisions a workspace. The store answers either a bare
// object or a single-element array depending on its representation mode;
// both are accepted. A slug collision surfaces as a conflict with the
// store's message intact.
func (c *Client) CreateTenant(ctx context.Context, accessToken string, tenant account.TenantCreate) (*account.Tenant, error) {
	headers := c.restHeaders(accessToken)
	if tenant.IdempotencyKey != "" {
		headers["Idempotency-Key"] = tenant.IdempotencyKey
	}

	body := map[string]any{
		"name": tenant.Name,
		"slug": tenant.Slug,
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/rest/v1/tenants", headers, body, &raw); err != nil {
		return nil, err
	}

	created := &account.Tenant{}
	if err := decodeRepresentation(raw, created); err != nil {
		return nil, err
	}

	return created, nil
}

// CreateProfile binds an identity to its tenant. The profile's primary key
// is the identity's ID, not a generated surrogate.
func (c *Client) CreateProfile(ctx context.Context, accessToken string, profile account.ProfileCreate) (*account.Profile, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/rest/v1/profiles", c.restHeaders(accessToken), profile, &raw); err != nil {
		return nil, err
	}

	created := &account.Profile{}
	if err := decodeRepresentation(raw, created); err != nil {
		return nil, err
	}

	return created, nil
}

// decodeRepresentation accepts both object and array representations.
func decodeRepresentation(raw json.RawMessage, out any) error {
	trimmed := []byte(raw)
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			return account.NewProviderError("resource store returned an empty representation", 200)
		}
		return json.Unmarshal(items[0], out)
	}

	return json.Unmarshal(trimmed, out)
}
