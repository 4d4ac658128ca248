package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func testServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "kg_testtoken")
	return srv, client
}

func jsonResponse(data any) []byte {
	b, _ := json.Marshal(map[string]any{"data": data})
	return b
}

func TestGetInstancesListSplitsDataAndErrors(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/instancesBulk/list", r.URL.Path)
		assert.Equal(t, "IN_PROGRESS", r.URL.Query().Get("stage"))
		assert.Equal(t, "Bearer kg_testtoken", r.Header.Get("Authorization"))

		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		assert.Equal(t, []string{"a", "b"}, ids)

		w.Write(jsonResponse(map[string]any{
			"a": map[string]any{
				"id":    "a",
				"name":  "Alpha",
				"types": []map[string]any{{"name": "Dataset", "label": "Dataset", "color": "#f00"}},
				"fields": map[string]any{
					"name": map[string]any{"type": "InputText", "label": "Name", "value": "Alpha"},
				},
			},
			"b": map[string]any{"error": map[string]any{"code": 404, "message": "gone"}},
		}))
	})

	out, err := client.GetInstancesList(context.Background(), DefaultStage, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.NotNil(t, out["a"].Data)
	assert.Nil(t, out["a"].Error)
	assert.Equal(t, "Alpha", out["a"].Data.Name)
	assert.Equal(t, "Dataset", out["a"].Data.PrimaryType().Name)
	assert.Equal(t, "Alpha", out["a"].Data.Fields["name"].Value)

	require.NotNil(t, out["b"].Error)
	assert.Nil(t, out["b"].Data)
	assert.Equal(t, 404, out["b"].Error.Code)
	assert.Equal(t, "gone", out["b"].Error.Message)
}

func TestGetInstancesLabel(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/instancesBulk/label", r.URL.Path)
		assert.Equal(t, "RELEASED", r.URL.Query().Get("stage"))
		w.Write(jsonResponse(map[string]any{
			"x": map[string]any{"id": "x", "name": "Xray", "space": "common"},
		}))
	})

	out, err := client.GetInstancesLabel(context.Background(), "RELEASED", []string{"x"})
	require.NoError(t, err)
	require.NotNil(t, out["x"].Data)
	assert.Equal(t, "Xray", out["x"].Data.Name)
	assert.Equal(t, "common", out["x"].Data.Workspace)
}

func TestBulkMalformedEntryBecomesItemError(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"a":"not-an-object"}}`))
	})

	out, err := client.GetInstancesList(context.Background(), DefaultStage, []string{"a"})
	require.NoError(t, err)
	require.NotNil(t, out["a"].Error)
	assert.Contains(t, out["a"].Error.Message, "decode a")
}

func TestBulkEmptyDataIsDecodeError(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	})

	_, err := client.GetInstancesList(context.Background(), DefaultStage, []string{"a"})
	require.Error(t, err)
	assert.True(t, IsDecode(err))
}

func TestGetInstanceNeighbors(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/instances/root/neighbors", r.URL.Path)
		w.Write(jsonResponse(map[string]any{
			"id":       "root",
			"name":     "Root",
			"types":    []map[string]any{{"name": "T", "label": "Type"}},
			"outbound": []map[string]any{{"id": "a", "name": "A"}},
			"inbound":  []map[string]any{{"id": "b", "name": "B"}},
		}))
	})

	n, err := client.GetInstanceNeighbors(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "root", n.ID)
	require.Len(t, n.Outbound, 1)
	require.Len(t, n.Inbound, 1)
	assert.Equal(t, "a", n.Outbound[0].ID)
	assert.Equal(t, "b", n.Inbound[0].ID)
}

func TestCreateInstancePassesSpace(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/instances/new-1", r.URL.Path)
		assert.Equal(t, "myspace", r.URL.Query().Get("space"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alpha", body["name"])

		w.Write(jsonResponse(map[string]any{"id": "server-1", "name": "Alpha"}))
	})

	inst, err := client.CreateInstance(context.Background(), "myspace", "new-1", map[string]any{"name": "Alpha"})
	require.NoError(t, err)
	assert.Equal(t, "server-1", inst.ID)
}

func TestPatchInstance(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/instances/a", r.URL.Path)
		w.Write(jsonResponse(map[string]any{"id": "a", "name": "Renamed"}))
	})

	inst, err := client.PatchInstance(context.Background(), "a", map[string]any{"name": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", inst.Name)
}

func TestDeleteInstance(t *testing.T) {
	called := false
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/instances/a", r.URL.Path)
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteInstance(context.Background(), "a"))
	assert.True(t, called)
}

func TestGetWorkspaceTypes(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/workspaces/common/types", r.URL.Path)
		w.Write(jsonResponse([]map[string]any{
			{"name": "Dataset", "label": "Dataset", "color": "#00f", "labelField": "name"},
		}))
	})

	types, err := client.GetWorkspaceTypes(context.Background(), "common")
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "name", types[0].LabelField)
	assert.Equal(t, "#00f", types[0].InstanceType().Color)
}

func TestGetUserProfile(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/me", r.URL.Path)
		w.Write(jsonResponse(map[string]any{
			"id":        "u1",
			"username":  "jdoe",
			"name":      "Jane Doe",
			"givenName": "Jane",
			"spaces":    []map[string]any{{"id": "s1", "name": "Space One"}},
		}))
	})

	profile, err := client.GetUserProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jdoe", profile.Username)
	require.Len(t, profile.Workspaces, 1)
	assert.Equal(t, "s1", profile.Workspaces[0].ID)
}

func TestErrorResponseCarriesStatusAndMessage(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no such instance"}}`))
	})

	_, err := client.GetInstance(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
	assert.Equal(t, "NOT_FOUND: no such instance", err.Error())
}

func TestErrorResponseNumericCode(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})

	_, err := client.GetUserProfile(context.Background())
	require.Error(t, err)
	assert.True(t, IsForbidden(err))
	assert.Equal(t, "403: denied", err.Error())
}

func TestErrorResponsePlainBody(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down\n"))
	})

	_, err := client.GetSettings(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, "HTTP 502: upstream down", err.Error())
}

func TestMalformedSingleResponseIsDecodeError(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not-json"))
	})

	_, err := client.GetInstance(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, IsDecode(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestClientTimeout(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(jsonResponse(map[string]any{"commit": "abc"}))
	})
	WithTimeout(20 * time.Millisecond)(client)

	_, err := client.GetSettings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestContextCancelStopsRequest(t *testing.T) {
	client := NewClient("http://example.invalid", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetSettings(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedClientWaitsOnContext(t *testing.T) {
	_, client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(jsonResponse(map[string]any{"commit": "abc"}))
	})
	WithRateLimit(0.001, 1)(client)

	_, err := client.GetSettings(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.GetSettings(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestSetTokenChangesAuthorization(t *testing.T) {
	var got string
	client := NewClient("http://kg.test/", "old")
	client.httpClient.Transport = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header.Get("Authorization")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(jsonBody(map[string]any{"commit": "c"})),
			Header:     make(http.Header),
		}, nil
	})
	client.SetToken("new")

	_, err := client.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer new", got)
	assert.Equal(t, "http://kg.test", client.BaseURL())
}

func TestBuildQuerySkipsEmptyValues(t *testing.T) {
	assert.Equal(t, "/p", buildQuery("/p", nil))
	assert.Equal(t, "/p", buildQuery("/p", QueryParams{"a": ""}))
	assert.Equal(t, "/p?a=1&b=x+y", buildQuery("/p", QueryParams{"a": "1", "b": "x y"}))
}

func TestFieldKeysPromotedFirst(t *testing.T) {
	inst := Instance{
		Fields: map[string]Field{
			"z":    {},
			"name": {},
			"a":    {},
		},
		PromotedFields: []string{"name", "missing"},
	}
	assert.Equal(t, []string{"name", "a", "z"}, inst.FieldKeys())
}
