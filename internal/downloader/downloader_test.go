package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	synchttp "github.com/ligustah/orthanc-sync/internal/http"
	"github.com/ligustah/orthanc-sync/internal/manifest"
	"github.com/ligustah/orthanc-sync/internal/progress"
	"github.com/ligustah/orthanc-sync/internal/sink"
)

// repo serves raw files keyed by "<branch>/<source>".
type repo struct {
	mu    sync.Mutex
	files map[string][]byte
	delay time.Duration

	active atomic.Int32
	peak   atomic.Int32
	hits   atomic.Int32
}

func newRepo(files map[string][]byte) *repo {
	return &repo{files: files}
}

func (r *repo) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.hits.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	data, ok := r.files[strings.TrimPrefix(req.URL.Path, "/raw-file/")]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Write(data)
}

func testData(seed, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i + seed) % 256)
	}
	return data
}

func defaultManifest(t *testing.T) manifest.Manifest {
	t.Helper()
	m, err := manifest.Build(manifest.Sources{
		FrameworkBranch: "default",
		SDKVersion:      "1.3.1",
		Files: []manifest.File{
			{Source: "OrthancFramework/Resources/CMake/DownloadOrthancFramework.cmake", Dir: "CMake"},
			{Source: "OrthancFramework/Resources/Toolchains/LinuxStandardBaseToolchain.cmake", Dir: "CMake"},
			{Source: "OrthancFramework/Resources/Toolchains/MinGW-W64-Toolchain32.cmake", Dir: "CMake"},
			{Source: "OrthancFramework/Resources/Toolchains/MinGW-W64-Toolchain64.cmake", Dir: "CMake"},
		},
		SDKFiles: []string{"orthanc/OrthancCPlugin.h"},
	})
	require.NoError(t, err)
	return m
}

func filesFor(m manifest.Manifest) map[string][]byte {
	files := make(map[string][]byte, len(m))
	for i, task := range m {
		files[task.Branch+"/"+task.Source] = testData(i, 4096+i*1000)
	}
	return files
}

func TestFetchRoundTrip(t *testing.T) {
	m := defaultManifest(t)
	files := filesFor(m)
	server := httptest.NewServer(newRepo(files))
	defer server.Close()

	root := filepath.Join(t.TempDir(), "Resources")
	f := New(sink.NewDir(root), Options{Repository: server.URL + "/raw-file"})

	res := f.Fetch(context.Background(), m[0])
	require.Equal(t, StatusOK, res.Status, "err: %v", res.Err)
	assert.Equal(t, server.URL+"/raw-file/default/OrthancFramework/Resources/CMake/DownloadOrthancFramework.cmake", res.URL)

	got, err := os.ReadFile(filepath.Join(root, "CMake", "DownloadOrthancFramework.cmake"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(files[m[0].Branch+"/"+m[0].Source], got), "body differs")
	assert.EqualValues(t, len(got), res.Bytes)
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(newRepo(map[string][]byte{}))
	defer server.Close()

	core, logs := observer.New(zap.ErrorLevel)
	root := t.TempDir()
	f := New(sink.NewDir(root), Options{
		Repository: server.URL + "/raw-file",
		Logger:     zap.New(core),
	})

	task := manifest.Task{Branch: "default", Source: "missing.cmake", Target: "CMake/missing.cmake"}
	res := f.Fetch(context.Background(), task)

	require.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, synchttp.ErrNotFound)

	var fe *FetchError
	require.True(t, errors.As(res.Err, &fe))
	assert.Equal(t, server.URL+"/raw-file/default/missing.cmake", fe.URL)
	assert.Contains(t, res.Err.Error(), fe.URL)

	entries := logs.FilterField(zap.String("url", fe.URL)).All()
	assert.Len(t, entries, 1)

	_, err := os.Stat(filepath.Join(root, "CMake", "missing.cmake"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "failed fetch must not create the target")
}

func TestFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := New(sink.NewDir(t.TempDir()), Options{Repository: url})
	res := f.Fetch(context.Background(), manifest.Task{Branch: "default", Source: "a.cmake", Target: "a.cmake"})

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), url+"/default/a.cmake")
}

func TestFetchTruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CMake"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "CMake", "a.cmake"), []byte("previous"), 0644))

	f := New(sink.NewDir(root), Options{Repository: server.URL})
	res := f.Fetch(context.Background(), manifest.Task{Branch: "default", Source: "a.cmake", Target: "CMake/a.cmake"})
	require.Equal(t, StatusFailed, res.Status)

	got, err := os.ReadFile(filepath.Join(root, "CMake", "a.cmake"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
}

func TestFetchDirectoryConflict(t *testing.T) {
	server := httptest.NewServer(newRepo(map[string][]byte{"default/a.cmake": []byte("x")}))
	defer server.Close()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "CMake"), []byte("file in the way"), 0644))

	f := New(sink.NewDir(root), Options{Repository: server.URL + "/raw-file"})
	res := f.Fetch(context.Background(), manifest.Task{Branch: "default", Source: "a.cmake", Target: "CMake/a.cmake"})

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "ensure dir")
}

func TestFetchReportsLocationFirst(t *testing.T) {
	var buf lockedBuffer
	location := filepath.Join("Resources", "CMake", "a.cmake")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(buf.String(), location) {
			t.Errorf("location not printed before request")
		}
		w.Write([]byte("x"))
	}))
	defer server.Close()

	reporter := progress.NewReporter(progress.Options{TotalFiles: 1, Output: &buf, Quiet: true})
	s := locationOverride{Sink: sink.NewDir(t.TempDir()), root: "Resources"}
	f := New(s, Options{Repository: server.URL, Progress: reporter})

	res := f.Fetch(context.Background(), manifest.Task{Branch: "default", Source: "a.cmake", Target: "CMake/a.cmake"})
	require.Equal(t, StatusOK, res.Status, "err: %v", res.Err)
	assert.Equal(t, location+"\n", buf.String())
}

// locationOverride reports locations under a fixed root.
type locationOverride struct {
	sink.Sink
	root string
}

func (l locationOverride) Location(target string) string {
	return filepath.Join(l.root, filepath.FromSlash(target))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunAll(t *testing.T) {
	m := defaultManifest(t)
	files := filesFor(m)
	server := httptest.NewServer(newRepo(files))
	defer server.Close()

	base := t.TempDir()
	root := filepath.Join(base, "Resources")
	f := New(sink.NewDir(root), Options{Repository: server.URL + "/raw-file"})

	report, err := f.Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, report.Results, len(m))
	assert.Len(t, report.Succeeded(), len(m))

	for i, task := range m {
		assert.Equal(t, task, report.Results[i].Task)
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(task.Target)))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(files[task.Branch+"/"+task.Source], got), task.Target)
	}

	_, err = os.Stat(filepath.Join(base, "Orthanc", "Sdk-1.3.1", "orthanc", "OrthancCPlugin.h"))
	assert.NoError(t, err)
}

func TestRunIdempotent(t *testing.T) {
	m := defaultManifest(t)
	server := httptest.NewServer(newRepo(filesFor(m)))
	defer server.Close()

	base := t.TempDir()
	f := New(sink.NewDir(filepath.Join(base, "Resources")), Options{Repository: server.URL + "/raw-file"})

	_, err := f.Run(context.Background(), m)
	require.NoError(t, err)
	first := snapshot(t, base)

	_, err = f.Run(context.Background(), m)
	require.NoError(t, err)
	second := snapshot(t, base)

	assert.Equal(t, first, second)
	assert.Len(t, second, len(m))
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestRunConcurrencyBound(t *testing.T) {
	files := make(map[string][]byte)
	var srcFiles []manifest.File
	for i := 0; i < 24; i++ {
		name := "Resources/CMake/file" + string(rune('a'+i)) + ".cmake"
		files["default/"+name] = testData(i, 128)
		srcFiles = append(srcFiles, manifest.File{Source: name, Dir: "CMake"})
	}
	m, err := manifest.Build(manifest.Sources{FrameworkBranch: "default", Files: srcFiles})
	require.NoError(t, err)

	r := newRepo(files)
	r.delay = 20 * time.Millisecond
	server := httptest.NewServer(r)
	defer server.Close()

	f := New(sink.NewDir(t.TempDir()), Options{Repository: server.URL + "/raw-file", Workers: 3})
	_, err = f.Run(context.Background(), m)
	require.NoError(t, err)

	assert.LessOrEqual(t, r.peak.Load(), int32(3))
	assert.EqualValues(t, 24, r.hits.Load())
}

func TestRunDefaultWorkers(t *testing.T) {
	f := New(sink.NewDir(t.TempDir()), Options{})
	assert.Equal(t, 10, f.opts.Workers)
}

func TestRunFailFast(t *testing.T) {
	m := defaultManifest(t)
	files := filesFor(m)
	delete(files, m[0].Branch+"/"+m[0].Source)

	r := newRepo(files)
	server := httptest.NewServer(r)
	defer server.Close()

	f := New(sink.NewDir(t.TempDir()), Options{Repository: server.URL + "/raw-file", Workers: 1})
	report, err := f.Run(context.Background(), m)
	require.Error(t, err)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Failed, 1)
	assert.Equal(t, manifest.URL(server.URL+"/raw-file", m[0]), be.Failed[0].URL)
	assert.Contains(t, err.Error(), be.Failed[0].URL)
	assert.Equal(t, len(m)-1, be.Skipped)

	assert.Len(t, report.Skipped(), len(m)-1)
	assert.EqualValues(t, 1, r.hits.Load())
}

func TestRunKeepGoing(t *testing.T) {
	m := defaultManifest(t)
	files := filesFor(m)
	delete(files, m[1].Branch+"/"+m[1].Source)
	delete(files, m[3].Branch+"/"+m[3].Source)

	server := httptest.NewServer(newRepo(files))
	defer server.Close()

	f := New(sink.NewDir(t.TempDir()), Options{
		Repository: server.URL + "/raw-file",
		Workers:    1,
		KeepGoing:  true,
	})
	report, err := f.Run(context.Background(), m)

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Len(t, be.Failed, 2)
	assert.Zero(t, be.Skipped)
	assert.Len(t, report.Succeeded(), len(m)-2)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, StatusFailed, report.Results[3].Status)
}

func TestRunContextCancelled(t *testing.T) {
	m := defaultManifest(t)
	r := newRepo(filesFor(m))
	r.delay = 200 * time.Millisecond
	server := httptest.NewServer(r)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(sink.NewDir(t.TempDir()), Options{Repository: server.URL + "/raw-file", Workers: 1})
	report, err := f.Run(ctx, m)
	require.Error(t, err)
	assert.Empty(t, report.Succeeded())
}

func TestRunProgress(t *testing.T) {
	m := defaultManifest(t)
	server := httptest.NewServer(newRepo(filesFor(m)))
	defer server.Close()

	var buf bytes.Buffer
	reporter := progress.NewReporter(progress.Options{TotalFiles: len(m), Output: &buf, Quiet: true})

	root := t.TempDir()
	f := New(sink.NewDir(root), Options{Repository: server.URL + "/raw-file", Progress: reporter})
	report, err := f.Run(context.Background(), m)
	require.NoError(t, err)

	stats := reporter.Stats()
	assert.Equal(t, len(m), stats.Completed)
	assert.Equal(t, report.Bytes(), stats.Bytes)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(m))
	for _, task := range m {
		assert.Contains(t, lines, filepath.Join(root, filepath.FromSlash(task.Target)))
	}
}

func TestVerify(t *testing.T) {
	m := defaultManifest(t)
	server := httptest.NewServer(newRepo(filesFor(m)))
	defer server.Close()

	ctx := context.Background()
	s := sink.NewDir(filepath.Join(t.TempDir(), "Resources"))

	result, err := Verify(ctx, s, m)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Missing, len(m))

	f := New(s, Options{Repository: server.URL + "/raw-file"})
	_, err = f.Run(ctx, m)
	require.NoError(t, err)

	result, err = Verify(ctx, s, m)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, len(m), result.Checked)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Empty)
}

func TestVerifyEmptyTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CMake"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "CMake", "a.cmake"), nil, 0644))

	m := manifest.Manifest{{Branch: "default", Source: "a.cmake", Target: "CMake/a.cmake"}}
	result, err := Verify(context.Background(), sink.NewDir(root), m)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"CMake/a.cmake"}, result.Empty)
}
