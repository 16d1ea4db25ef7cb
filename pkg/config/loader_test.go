package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mockdeck/mockdeck/pkg/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFromFile_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "mockdeck.yaml")

	writeFile(t, path, `
hostname: localhost
port: 9090
requests:
  - method: GET
    path: /api/users
    response:
      status: 200
      headers:
        - name: Cache-Control
          value: no-store
      body:
        contentType: json
        file: responses/users.json
  - method: post
    path: /api/users
    response:
      status: 204
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Hostname)
	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.RecordMode())
	require.Equal(t, 2, cfg.Requests.Len())

	get, ok := cfg.Requests.Get(mock.Key{Method: mock.MethodGet, Path: "/api/users"})
	require.True(t, ok)
	require.NotNil(t, get.Response.Body)
	assert.Equal(t, filepath.Join(tmpDir, "responses", "users.json"), get.Response.Body.FileLocation)

	cc, _ := get.Response.Headers.Get("cache-control")
	assert.Equal(t, "no-store", cc)

	assert.True(t, cfg.Requests.Contains(mock.Key{Method: mock.MethodPost, Path: "/api/users"}))
}

func TestLoadFromFile_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "mockdeck.json")

	writeFile(t, path, `{
		"port": 0,
		"record": {"baseURL": "https://api.example.com"},
		"requests": []
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultHostname, cfg.Hostname)
	assert.Equal(t, 0, cfg.Port, "explicit zero port is kept")
	require.True(t, cfg.RecordMode())
	assert.Equal(t, "https://api.example.com", cfg.Record.BaseURL)
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	writeFile(t, path, "requests: []\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultHostname, cfg.Hostname)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestLoadFromFile_Include(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "mockdeck.yaml")

	writeFile(t, path, `
include:
  - mocks/**/*.yaml
requests:
  - method: GET
    path: /health
    response:
      status: 200
`)
	writeFile(t, filepath.Join(tmpDir, "mocks", "users.yaml"), `
- method: GET
  path: /api/users
  response:
    status: 200
    body:
      contentType: json
      file: users.json
`)
	writeFile(t, filepath.Join(tmpDir, "mocks", "v2", "orders.yaml"), `
- method: GET
  path: /api/orders/*
  response:
    status: 200
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	all := cfg.Requests.All()
	require.Len(t, all, 3)
	assert.Equal(t, "/health", all[0].Path)
	assert.Equal(t, "/api/users", all[1].Path)
	assert.Equal(t, "/api/orders/*", all[2].Path)

	// body files resolve against the including file's own directory
	assert.Equal(t, filepath.Join(tmpDir, "mocks", "users.json"), all[1].Response.Body.FileLocation)
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("MOCKDECK_TEST_PORT", "7070")

	path := filepath.Join(t.TempDir(), "env.yaml")
	writeFile(t, path, `
hostname: ${MOCKDECK_TEST_HOST:-0.0.0.0}
port: ${MOCKDECK_TEST_PORT}
requests: []
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Hostname)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadFromFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{name: "missing file", file: "absent.yaml", wantErr: ErrFileNotFound},
		{name: "empty file", file: "empty.yaml", content: "  \n", wantErr: ErrEmptyFile},
		{name: "bad yaml", file: "bad.yaml", content: "requests: [\n", wantErr: ErrInvalidYAML},
		{name: "bad json", file: "bad.json", content: "{", wantErr: ErrInvalidJSON},
		{
			name: "duplicate request",
			file: "dup.yaml",
			content: `
requests:
  - {method: GET, path: /a, response: {status: 200}}
  - {method: GET, path: /a/, response: {status: 500}}
`,
			wantErr: mock.ErrDuplicateRequest,
		},
		{
			name:    "unknown method",
			file:    "method.yaml",
			content: "requests:\n  - {method: BREW, path: /, response: {status: 418}}\n",
			wantErr: mock.ErrUnknownMethod,
		},
		{
			name:    "bad port",
			file:    "port.yaml",
			content: "port: 70000\nrequests: []\n",
			wantErr: ErrInvalidPort,
		},
		{
			name:    "bad record url",
			file:    "record.yaml",
			content: "record: {baseURL: ftp://example.com}\n",
			wantErr: ErrInvalidBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if tt.content != "" {
				writeFile(t, path, tt.content)
			}
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := New("localhost", 8181,
		mock.NewRequest(mock.MethodGet, "/a", 200),
		mock.Request{
			Method: mock.MethodGet,
			Path:   "/b",
			Response: mock.RequestedResponse{
				Status: 200,
				Body:   &mock.ResponseBody{ContentType: mock.ContentTypeText, FileLocation: filepath.Join(tmpDir, "b.txt")},
			},
		},
	)
	require.NoError(t, err)

	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, Save(path, cfg))

		loaded, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, cfg.Hostname, loaded.Hostname)
		assert.Equal(t, cfg.Port, loaded.Port)
		assert.Equal(t, cfg.Requests.All(), loaded.Requests.All())
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/abs/file.json", ResolvePath("/base", "/abs/file.json"))
	assert.Equal(t, filepath.Join("/base", "rel", "file.json"), ResolvePath("/base", "rel/file.json"))
	assert.Equal(t, "", ResolvePath("/base", ""))
}

func TestLoadFromFile_Example(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join("..", "..", "examples", "with-config-file", "mockdeck.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Requests.Len())
	assert.Empty(t, cfg.Requests.FileFormatProblems())

	order, ok := cfg.Requests.Get(mock.Key{Method: mock.MethodPost, Path: "/api/orders"})
	require.True(t, ok, "included definitions are loaded")
	require.NotNil(t, order.Response.Body)
	_, err = os.Stat(order.Response.Body.FileLocation)
	assert.NoError(t, err, "include bodies resolve against the included file")
}
