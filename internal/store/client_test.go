package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metal-toolbox/composer/internal/model"
	"github.com/metal-toolbox/composer/internal/xname"
)

func newTestClient(t *testing.T, version model.SchemaVersion, handler http.Handler) *client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoint, err := url.Parse(srv.URL)
	require.NoError(t, err)

	logger := logrus.New()
	logger.Out = io.Discard

	return &client{
		version:    version,
		endpoint:   endpoint,
		httpClient: srv.Client(),
		logger:     logger,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestGetConfiguration(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/cfs/v2/configurations/compute-config", r.URL.Path)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"name": "compute-config",
			"layers": []any{
				map[string]any{
					"cloneUrl": "https://api-gw.example.com/vcs/cray/compute-config-management.git",
					"playbook": "site.yml",
					"commit":   "abc1234",
				},
			},
		})
	})

	c := newTestClient(t, model.SchemaV2, handler)

	cfg, err := c.GetConfiguration(context.Background(), "compute-config")
	require.NoError(t, err)

	assert.Equal(t, "compute-config", cfg.Name())
	require.Len(t, cfg.Layers, 1)
	assert.Equal(t, "abc1234", cfg.Layers[0].Commit)
}

func TestGetConfigurationNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, model.SchemaV2, handler)

	_, err := c.GetConfiguration(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetConfigurationProblemDetail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{
			"title":  "Internal Server Error",
			"detail": "database unavailable",
		})
	})

	c := newTestClient(t, model.SchemaV2, handler)

	_, err := c.GetConfiguration(context.Background(), "compute-config")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayQuery)
	assert.Contains(t, err.Error(), "Internal Server Error")
	assert.Contains(t, err.Error(), "Detail: database unavailable")
}

func TestPutConfigurationRefusesOverwrite(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		writeJSON(t, w, http.StatusOK, map[string]any{"name": "existing", "layers": []any{}})
	})

	c := newTestClient(t, model.SchemaV2, handler)

	_, err := c.PutConfiguration(context.Background(), "existing", model.NewConfiguration(model.SchemaV2), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationExists)
}

func TestPutConfigurationCreatesWhenMissing(t *testing.T) {
	var putBody map[string]any

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))

			putBody["lastUpdated"] = "2023-11-07T14:30:05Z"
			writeJSON(t, w, http.StatusOK, putBody)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	})

	c := newTestClient(t, model.SchemaV2, handler)

	cfg := model.NewConfiguration(model.SchemaV2)
	cfg.Layers = append(cfg.Layers, mustLayer(t, model.SchemaV2))

	saved, err := c.PutConfiguration(context.Background(), "new-config", cfg, false)
	require.NoError(t, err)
	require.Len(t, saved.Layers, 1)
	assert.Contains(t, putBody, "layers")
}

func TestPutConfigurationOverwrite(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no existence check is made when overwriting
		require.Equal(t, http.MethodPut, r.Method)
		writeJSON(t, w, http.StatusOK, map[string]any{"name": "existing", "layers": []any{}})
	})

	c := newTestClient(t, model.SchemaV2, handler)

	saved, err := c.PutConfiguration(context.Background(), "existing", model.NewConfiguration(model.SchemaV2), true)
	require.NoError(t, err)
	assert.Equal(t, "existing", saved.Name())
}

func TestListConfigurationsV2(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/cfs/v2/configurations", r.URL.Path)

		writeJSON(t, w, http.StatusOK, []any{
			map[string]any{"name": "config-a", "layers": []any{}},
			map[string]any{"name": "config-b", "layers": []any{}},
		})
	})

	c := newTestClient(t, model.SchemaV2, handler)

	names := drainIterator(t, c.ListConfigurations(context.Background()))
	assert.Equal(t, []string{"config-a", "config-b"}, names)
}

func TestListConfigurationsV3Paged(t *testing.T) {
	var requests []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)

		switch r.URL.Query().Get("after_id") {
		case "":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"configurations": []any{
					map[string]any{"name": "config-a", "layers": []any{}},
					map[string]any{"name": "config-b", "layers": []any{}},
				},
				"next": map[string]any{"after_id": "config-b"},
			})
		case "config-b":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"configurations": []any{
					map[string]any{"name": "config-c", "layers": []any{}},
				},
				"next": nil,
			})
		default:
			t.Fatalf("unexpected after_id %q", r.URL.Query().Get("after_id"))
		}
	})

	c := newTestClient(t, model.SchemaV3, handler)

	it := c.ListConfigurations(context.Background())

	// no request until the first Next call
	assert.Empty(t, requests)

	names := drainIterator(t, it)
	assert.Equal(t, []string{"config-a", "config-b", "config-c"}, names)
	assert.Len(t, requests, 2)
}

func TestListConfigurationsPoisonedOnError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, model.SchemaV3, handler)

	it := c.ListConfigurations(context.Background())

	_, err := it.Next(context.Background())
	require.Error(t, err)

	_, again := it.Next(context.Background())
	assert.Equal(t, err, again)
}

func TestComponentDesiredConfig(t *testing.T) {
	tests := []struct {
		version model.SchemaVersion
		key     string
	}{
		{model.SchemaV2, "desiredConfig"},
		{model.SchemaV3, "desired_config"},
	}

	for _, tc := range tests {
		t.Run(string(tc.version), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasSuffix(r.URL.Path, "/components/x1000c0s0b0n0"))
				writeJSON(t, w, http.StatusOK, map[string]any{tc.key: "compute-config"})
			})

			c := newTestClient(t, tc.version, handler)

			configName, err := c.ComponentDesiredConfig(context.Background(), xname.New("x1000c0s0b0n0"))
			require.NoError(t, err)
			assert.Equal(t, "compute-config", configName)
		})
	}
}

func TestSetComponentDesiredConfig(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"desired_config": "compute-config"}, body)

		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, model.SchemaV3, handler)

	err := c.SetComponentDesiredConfig(context.Background(), xname.New("x1000c0s0b0n0"), "compute-config")
	require.NoError(t, err)
}

func TestCreateSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		name, _ := body["name"].(string)
		assert.True(t, strings.HasPrefix(name, "composer-"))
		assert.LessOrEqual(t, len(name), maxSessionNameLength)
		assert.Equal(t, "compute-config", body["configuration_name"])

		writeJSON(t, w, http.StatusOK, body)
	})

	c := newTestClient(t, model.SchemaV3, handler)

	session, err := c.CreateSession(context.Background(), SessionSpec{
		NamePrefix:        "composer",
		ConfigurationName: "compute-config",
		TargetGroups:      map[string][]string{"Compute": {"x1000c0s0b0n0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "compute-config", session.ConfigurationName)
	assert.True(t, strings.HasPrefix(session.Name, "composer-"))
}

func TestSessionNameTruncatesPrefix(t *testing.T) {
	c := &client{logger: logrus.New()}
	c.logger.Out = io.Discard

	name := c.sessionName("a-very-long-prefix-that-exceeds-the-limit")
	assert.LessOrEqual(t, len(name), maxSessionNameLength)
	assert.True(t, strings.HasPrefix(name, "a-very-l"))
}

func TestConfigurationsForComponents(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/components/x1000c0s0b0n0"):
			writeJSON(t, w, http.StatusOK, map[string]any{"desired_config": "compute-config"})
		case strings.Contains(r.URL.Path, "/components/x1000c0s0b0n1"):
			// same desired configuration, deduplicated by the client
			writeJSON(t, w, http.StatusOK, map[string]any{"desired_config": "compute-config"})
		case strings.Contains(r.URL.Path, "/components/x3000c0s1b0n0"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/configurations/compute-config"):
			writeJSON(t, w, http.StatusOK, map[string]any{"name": "compute-config", "layers": []any{}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	c := newTestClient(t, model.SchemaV3, handler)

	configs, err := c.ConfigurationsForComponents(context.Background(), []xname.XName{
		xname.New("x1000c0s0b0n0"),
		xname.New("x1000c0s0b0n1"),
		xname.New("x3000c0s1b0n0"),
	})
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "compute-config", configs[0].Name())
}

func mustLayer(t *testing.T, version model.SchemaVersion) *model.Layer {
	t.Helper()

	layer, err := model.NewLayer(version, model.LayerKindConfig, model.LayerSpec{
		CloneURL: "https://api-gw.example.com/vcs/cray/compute-config-management.git",
		Playbook: "site.yml",
		Commit:   "abc1234",
	})
	require.NoError(t, err)

	return layer
}

func drainIterator(t *testing.T, it *ConfigurationIterator) []string {
	t.Helper()

	var names []string

	for {
		cfg, err := it.Next(context.Background())
		require.NoError(t, err)

		if cfg == nil {
			return names
		}

		names = append(names, cfg.Name())
	}
}
