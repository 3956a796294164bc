package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/necronet/internal/museumtest"
	"github.com/tendant/necronet/pkg/necronet"
)

const testBucket = "crypt"

func newMuseum(t *testing.T, opts ...museumtest.Option) (*museumtest.Backend, string) {
	t.Helper()
	t.Setenv("NECRONET_POLL_INITIAL_INTERVAL", "1ms")
	t.Setenv("NECRONET_POLL_MAX_INTERVAL", "1ms")
	t.Setenv("NECRONET_POLL_MAX_ATTEMPTS", "10")
	t.Setenv("AWS_S3_BUCKET", testBucket)
	t.Setenv("AWS_S3_REGION", "eu-north-1")
	t.Setenv("AWS_S3_ENDPOINT", "")

	backend := museumtest.New(opts...)
	srv := museumtest.NewServer(backend)
	t.Cleanup(srv.Close)
	return backend, srv.URL
}

func run(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--api-url", apiURL, "--env-file", filepath.Join(t.TempDir(), ".env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHealthCommand(t *testing.T) {
	_, url := newMuseum(t)

	out, err := run(t, url, "health")
	require.NoError(t, err)
	assert.Equal(t, "status=alive supabase=not_configured s3=memory tts=not_configured\n", out)
}

func TestUploadCommandWatch(t *testing.T) {
	backend, url := newMuseum(t,
		museumtest.WithAfterUpload(museumtest.DefaultMigration),
		museumtest.WithIDFunc(func() string { return "a1" }),
	)
	path := writeFile(t, "ghost.swf", bytes.Repeat([]byte("FWS"), 1000))

	out, err := run(t, url, "upload", "--watch", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Artifact ID: a1")
	assert.Contains(t, out, "Status:      uploaded")
	assert.Contains(t, out, "https://crypt.s3.eu-north-1.amazonaws.com/artifacts/flash/a1/ghost.swf")
	assert.Contains(t, out, "a1  migrating")
	assert.Contains(t, out, "a1  ready  narration: https://narrations.necronet.test/a1.mp3")
	assert.Equal(t, 1, backend.Uploads())
}

func TestUploadCommandRejectsInvalidFile(t *testing.T) {
	backend, url := newMuseum(t)
	path := writeFile(t, "virus.exe", []byte("MZ"))

	_, err := run(t, url, "upload", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Only ancient relics accepted")
	assert.Equal(t, 0, backend.Uploads())
}

func TestGetCommand(t *testing.T) {
	backend, url := newMuseum(t)
	backend.Seed(necronet.Artifact{ID: "a1", Name: "index.html", Type: necronet.ArtifactTypeHTML, Status: necronet.StatusReady})

	out, err := run(t, url, "get", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "Name:        index.html")

	out, err = run(t, url, "--json", "get", "a1")
	require.NoError(t, err)
	var artifact necronet.Artifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))
	assert.Equal(t, necronet.StatusReady, artifact.Status)

	_, err = run(t, url, "get", "missing")
	assert.ErrorIs(t, err, necronet.ErrNotFound)
}

func TestWatchCommand(t *testing.T) {
	backend, url := newMuseum(t)
	for _, id := range []string{"a1", "a2"} {
		backend.Seed(necronet.Artifact{ID: id, Name: id + ".png", Status: necronet.StatusUploaded})
		backend.Script(id,
			museumtest.Step{Status: necronet.StatusMigrating},
			museumtest.Step{Status: necronet.StatusReady},
		)
	}

	out, err := run(t, url, "watch", "a1", "a2")
	require.NoError(t, err)
	assert.Contains(t, out, "a1  ready")
	assert.Contains(t, out, "a2  ready")
}

func TestWatchCommandFailures(t *testing.T) {
	backend, url := newMuseum(t)
	backend.Seed(necronet.Artifact{ID: "doomed", Status: necronet.StatusMigrating})
	backend.Script("doomed", museumtest.Step{Status: necronet.StatusFailed, ErrorMessage: "Corrupted beyond repair"})
	backend.Seed(necronet.Artifact{ID: "stuck", Status: necronet.StatusMigrating})

	out, err := run(t, url, "watch", "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration failed")
	assert.Contains(t, out, "error: Corrupted beyond repair")

	_, err = run(t, url, "watch", "stuck")
	assert.ErrorIs(t, err, necronet.ErrTimeout)
}

func TestListCommand(t *testing.T) {
	backend, url := newMuseum(t)
	base := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.swf", "b.html", "c.gif"} {
		backend.Seed(necronet.Artifact{
			ID:        name,
			Name:      name,
			Status:    necronet.StatusReady,
			CreatedAt: necronet.Timestamp{Time: base.Add(time.Duration(i) * time.Hour)},
		})
	}

	out, err := run(t, url, "list", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 2 of 3 artifacts")

	out, err = run(t, url, "--json", "list", "--limit", "2", "--all")
	require.NoError(t, err)
	var list necronet.ArtifactList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Artifacts, 3)
	assert.Equal(t, "c.gif", list.Artifacts[0].ID)
}

func TestListCommandEmpty(t *testing.T) {
	_, url := newMuseum(t)

	out, err := run(t, url, "list")
	require.NoError(t, err)
	assert.Equal(t, "The museum is empty.\n", out)
}

func TestPlanCommand(t *testing.T) {
	_, url := newMuseum(t)

	out, err := run(t, url, "plan", "ghost.swf")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy:  ruffle_embed")
	assert.Contains(t, out, "Estimated: 45s")

	out, err = run(t, url, "plan", "--type", "image", "scan.bin")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy:  image_optimize")

	_, err = run(t, url, "plan", "--type", "hologram", "x")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	_, url := newMuseum(t)
	good := writeFile(t, "cat.png", make([]byte, 1536))
	bad := writeFile(t, "virus.exe", []byte("MZ"))

	out, err := run(t, url, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "(1.5 KB, image): ok")

	out, err = run(t, url, "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files rejected", err.Error())
	assert.Contains(t, out, "rejected: Only ancient relics accepted")
}

func TestURLCommand(t *testing.T) {
	_, url := newMuseum(t)

	out, err := run(t, url, "url", "artifacts/flash/a1/ghost.swf")
	require.NoError(t, err)
	assert.Equal(t, "https://crypt.s3.eu-north-1.amazonaws.com/artifacts/flash/a1/ghost.swf\n", out)

	t.Setenv("AWS_S3_ENDPOINT", "http://localhost:9000")
	out, err = run(t, url, "url", "artifacts/flash/a1/ghost.swf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/crypt/artifacts/flash/a1/ghost.swf\n", out)
}

func TestFetchCommand(t *testing.T) {
	backend, url := newMuseum(t, museumtest.WithIDFunc(func() string { return "a1" }))
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	s3 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/"+testBucket+"/")
		data, ok := backend.Blob(key)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, key, time.Time{}, bytes.NewReader(data))
	}))
	defer s3.Close()
	t.Setenv("AWS_S3_ENDPOINT", s3.URL)

	content := bytes.Repeat([]byte("<marquee>"), 500)
	_, err := run(t, url, "upload", writeFile(t, "index.html", content))
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "copy.html")
	out, err := run(t, url, "fetch", "a1", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved index.html (4.4 KB)")

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, written)
}
