package api

import (
	"context"
	"fmt"
	"net/url"
)

// --- Instance Methods ---

// GetInstancesList fetches the full record of every id in one round trip.
func (c *Client) GetInstancesList(ctx context.Context, stage string, ids []string) (map[string]Result[Instance], error) {
	path := buildQuery("/api/instancesBulk/list", QueryParams{"stage": stage})
	data, err := c.post(ctx, path, ids)
	if err != nil {
		return nil, err
	}
	return decodeBatch[Instance](data)
}

// GetInstancesLabel fetches the label payload of every id in one round trip.
func (c *Client) GetInstancesLabel(ctx context.Context, stage string, ids []string) (map[string]Result[InstanceLabel], error) {
	path := buildQuery("/api/instancesBulk/label", QueryParams{"stage": stage})
	data, err := c.post(ctx, path, ids)
	if err != nil {
		return nil, err
	}
	return decodeBatch[InstanceLabel](data)
}

func (c *Client) GetInstanceNeighbors(ctx context.Context, id string) (*Neighbor, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/instances/%s/neighbors", url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	return decodeOne[Neighbor](data)
}

func (c *Client) GetInstance(ctx context.Context, id string) (*Instance, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/instances/%s", url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	return decodeOne[Instance](data)
}

// CreateInstance creates an instance in space. The server may assign a different id.
func (c *Client) CreateInstance(ctx context.Context, space, id string, payload map[string]any) (*Instance, error) {
	path := buildQuery(fmt.Sprintf("/api/instances/%s", url.PathEscape(id)), QueryParams{"space": space})
	data, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return decodeOne[Instance](data)
}

func (c *Client) PatchInstance(ctx context.Context, id string, payload map[string]any) (*Instance, error) {
	data, err := c.patch(ctx, fmt.Sprintf("/api/instances/%s", url.PathEscape(id)), payload)
	if err != nil {
		return nil, err
	}
	return decodeOne[Instance](data)
}

func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	_, err := c.del(ctx, fmt.Sprintf("/api/instances/%s", url.PathEscape(id)))
	return err
}

func (c *Client) GetWorkspaceTypes(ctx context.Context, workspace string) ([]StructureOfType, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/workspaces/%s/types", url.PathEscape(workspace)))
	if err != nil {
		return nil, err
	}
	return decodeList[StructureOfType](data)
}
