package api

import "context"

// --- User Methods ---

func (c *Client) GetUserProfile(ctx context.Context) (*UserProfile, error) {
	data, err := c.get(ctx, "/api/users/me")
	if err != nil {
		return nil, err
	}
	return decodeOne[UserProfile](data)
}

// GetSettings reads the bootstrap settings. It doubles as the reachability probe.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	data, err := c.get(ctx, "/api/settings")
	if err != nil {
		return nil, err
	}
	return decodeOne[Settings](data)
}
