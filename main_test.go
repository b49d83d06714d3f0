package main

import (
	"bytes"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("PMS_PORT", "9090")

	config, err := loadConfig()

	req.NoError(err)
	req.Equal(":9090", config.Port)
	req.Equal("./data", config.BasePath)
	req.Equal(5, config.PreviewMaxPages)
	req.Equal(4, config.PreviewWorkers)
	req.Equal("png", config.PreviewFormat)
	req.Equal(time.Hour, config.ResourceMaxAge)
	req.Equal(30*time.Second, config.FetchTimeout)
	req.EqualValues(100<<20, config.MaxUploadBytes())
	req.Equal([]string{"*"}, config.Origins())
}

func TestLoadConfig_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("PMS_PORT", "127.0.0.1:8081")
	t.Setenv("PMS_PREVIEW_MAX_PAGES", "0")
	t.Setenv("PMS_RESOURCE_MAX_AGE", "15m")
	t.Setenv("PMS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	config, err := loadConfig()

	req.NoError(err)
	req.Equal("127.0.0.1:8081", config.Port)
	req.Zero(config.PreviewMaxPages)
	req.Equal(15*time.Minute, config.ResourceMaxAge)
	req.Equal([]string{"https://a.example", "https://b.example"}, config.Origins())
}

func TestLoadConfig_Invalid(t *testing.T) {
	for name, kv := range map[string][2]string{
		"Unknown render format": {"PMS_PREVIEW_FORMAT", "tiff"},
		"Zero workers":          {"PMS_PREVIEW_WORKERS", "0"},
		"Bad mode":              {"PMS_MODE", "prod"},
		"Remote URL":            {"PMS_REMOTE_STORE_URL", "not a url"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])

			_, err := loadConfig()

			require.Error(t, err)
		})
	}
}

func testConfig(t *testing.T) *Config {
	t.Setenv("PMS_BASEPATH", t.TempDir())
	t.Setenv("PMS_MODE", "test")
	config, err := loadConfig()
	require.NoError(t, err)
	return config
}

func TestNewServer(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	srv, err := newServer(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	req.NoError(err)
	t.Cleanup(func() { srv.db.Close() })

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, apiPrefix+"/health", nil))
	req.Equal(http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "pms_preview_live_resources")
	req.Contains(w.Body.String(), "go_goroutines")
}

func TestNewPipeline_RemoteStore(t *testing.T) {
	req := require.New(t)
	t.Setenv("PMS_REMOTE_STORE_URL", "http://docs.internal:9000")
	config := testConfig(t)

	pipeline, err := newPipeline(config, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req.NoError(err)
	req.NotNil(pipeline.Store)
	req.Equal("http://docs.internal:9000/documents/a%2Fb/download", pipeline.DownloadURL("a/b"))
}

func TestInspectCommand(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	req.NoError(tiff.Encode(&buf, img, nil))
	path := filepath.Join(dir, "scan.tif")
	req.NoError(os.WriteFile(path, buf.Bytes(), 0644))

	outDir := filepath.Join(dir, "out")
	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"inspect", path, "--out", outDir})

	req.NoError(cmd.Execute())

	req.Contains(stdout.String(), "detected: tiff")
	req.Contains(stdout.String(), "route:    decode")
	req.Contains(stdout.String(), "pages:    1 of 1")
	_, err := os.Stat(filepath.Join(outDir, "scan-page-1.png"))
	req.NoError(err)
}

func TestInspectCommand_Delegated(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	req.NoError(os.WriteFile(path, []byte("plain text"), 0644))

	var stdout bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"inspect", path})

	req.NoError(cmd.Execute())
	req.Contains(stdout.String(), "route:    delegate")
}
