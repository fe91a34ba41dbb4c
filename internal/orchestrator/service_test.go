package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/auth"
	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/enumerate"
	"github.com/kingotools/capture/internal/kingo"
	pubmemory "github.com/kingotools/capture/internal/publisher/memory"
	"github.com/kingotools/capture/internal/registry"
	"github.com/kingotools/capture/internal/storage/memory"
	"github.com/kingotools/capture/internal/transport"
)

const loginFormHTML = `<html><body>
<input type="hidden" name="__VIEWSTATE" value="vs1" />
<input type="text" name="txt_dsdsdsdjkjkjc" />
</body></html>`

// newKingoServer fakes the academic site: login exchange, course listing,
// and per-course detail queries. Detail pages for codes prefixed "BAD" come
// back without a recognizable title, so parsing them fails.
func newKingoServer(loginOK bool, courseCodes ...string) *httptest.Server {
	if len(courseCodes) == 0 {
		courseCodes = []string{"B001", "B002"}
	}
	var listing strings.Builder
	listing.WriteString(`<select name="Sel_KC">`)
	for _, code := range courseCodes {
		fmt.Fprintf(&listing, `<option value="%s">课程%s</option>`, code, code)
	}
	listing.WriteString(`</select>`)

	mux := http.NewServeMux()
	mux.HandleFunc("/_data/index_login.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if !loginOK {
				_, _ = io.WriteString(w, "<html><body>维护中</body></html>")
				return
			}
			http.SetCookie(w, &http.Cookie{Name: kingo.SessionCookieName, Value: "sess-1"})
			_, _ = io.WriteString(w, loginFormHTML)
			return
		}
		_, _ = io.WriteString(w, "<html><body>欢迎您</body></html>")
	})
	mux.HandleFunc("/znpk/Kc_List.aspx", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, listing.String())
	})
	mux.HandleFunc("/znpk/Pri_StuSel_rpt.aspx", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		code := r.PostFormValue("Sel_KC")
		if strings.HasPrefix(code, "BAD") {
			_, _ = io.WriteString(w, "<html><body>查询出错</body></html>")
			return
		}
		_, _ = fmt.Fprintf(w, `<html><body>
<table><tr><td class="page_title">%s 某课程</td></tr></table>
<table class="page_table">
<tr><td>班级</td><td>教师</td><td>时间</td><td>地点</td></tr>
<tr><td>%s班</td><td>老师</td><td>周一</td><td>教学楼</td></tr>
</table>
</body></html>`, code, code)
	})
	return httptest.NewServer(mux)
}

type staticTerms struct {
	terms map[string]string
}

func (s *staticTerms) Terms(context.Context) (map[string]string, error)  { return s.terms, nil }
func (s *staticTerms) Reload(context.Context) (map[string]string, error) { return s.terms, nil }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("task-%d", g.n.Add(1)), nil
}

type fixture struct {
	service   *Service
	store     *memory.TaskStore
	artifacts *memory.ArtifactStore
	registry  *registry.TaskRegistry
	counters  *registry.Counters
	publisher *pubmemory.Publisher
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()
	site := kingo.NewSite(baseURL)
	f := &fixture{
		store:     memory.NewTaskStore(),
		artifacts: memory.NewArtifactStore(),
		registry:  registry.New(),
		counters:  registry.NewCounters(),
		publisher: pubmemory.New(),
	}
	f.service = New(Config{
		Store:      f.store,
		Artifacts:  f.artifacts,
		Registry:   f.registry,
		Counters:   f.counters,
		Terms:      &staticTerms{terms: map[string]string{"20251": "2025-2026-1"}},
		Auth:       auth.New(site, kingo.LoginProcessor{}, zap.NewNop()),
		Enumerator: enumerate.New(site, kingo.ParseCourseList, zap.NewNop()),
		Site:       site,
		Profile: func(capture.Settings) transport.Profile {
			return transport.Profile{
				BaseURL:   baseURL,
				UserAgent: "capture-test/0.1",
				Timeout:   5 * time.Second,
			}
		},
		ParseCourse: kingo.ParseCourseDetails,
		Publisher:   f.publisher,
		Topic:       "capture-events",
		Clock:       &fakeClock{now: time.Unix(1000, 0)},
		IDs:         &seqIDs{},
		Logger:      zap.NewNop(),
	})
	return f
}

func testSettings() capture.Settings {
	return capture.Settings{
		Username: "2020123456",
		Password: "secret",
		Role:     "2",
		Threads:  2,
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)
	require.Equal(t, "task-1", task.ID)
	require.Equal(t, "20251", task.TermCode)
	require.Equal(t, "2025-2026-1", task.TermName)
	require.Equal(t, capture.StageNone, task.Stage)
	require.Equal(t, "task_created", task.StageReport)

	stored, err := f.store.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, task, stored)
}

func TestService_Create_UnknownTermFails(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.service.Create(context.Background(), "19999")
	require.ErrorIs(t, err, capture.ErrTermNotFound)
}

func TestService_Start_RunsToCompletion(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	details, err := f.service.Start(context.Background(), task.ID, testSettings())
	require.NoError(t, err)
	require.Equal(t, capture.StageInitialize, details.Stage)
	require.Equal(t, "task_initialing", details.StageReport)

	require.Eventually(t, func() bool {
		stored, err := f.store.FindByID(context.Background(), task.ID)
		return err == nil && stored.Stage == capture.StageStopped && stored.StageReport == "stopped"
	}, 5*time.Second, 10*time.Millisecond)

	files := f.artifacts.Files(task.ID)
	require.Len(t, files, 2)
	var course capture.Course
	require.NoError(t, json.Unmarshal(files["B001"], &course))
	require.Equal(t, "B001", course.Code)
	require.Len(t, course.Classes, 1)

	require.Eventually(t, func() bool {
		return f.counters.Capturing() == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, f.publisher.Messages(), 1)

	rt, ok := f.registry.Lookup(task.ID)
	require.True(t, ok)
	require.Equal(t, capture.RuntimeStopped, rt.State())
}

func TestService_Start_ItemFailuresDoNotAbortTask(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true,
		"B001", "BAD1", "B002", "BAD2", "BAD3", "B003", "BAD4", "BAD5")
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	settings := testSettings()
	settings.Threads = 8
	_, err = f.service.Start(context.Background(), task.ID, settings)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := f.store.FindByID(context.Background(), task.ID)
		return err == nil && stored.Stage == capture.StageStopped && stored.StageReport == "stopped"
	}, 5*time.Second, 10*time.Millisecond)

	files := f.artifacts.Files(task.ID)
	require.Len(t, files, 3)
	for _, code := range []string{"B001", "B002", "B003"} {
		require.Contains(t, files, code)
	}

	rt, ok := f.registry.Lookup(task.ID)
	require.True(t, ok)
	snap := rt.Snapshot()
	require.Equal(t, 3, snap.Succeeded)
	require.Equal(t, 5, snap.Failed)

	require.Eventually(t, func() bool {
		return f.counters.Capturing() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_Start_UnknownTaskFails(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.service.Start(context.Background(), "missing", testSettings())
	require.ErrorIs(t, err, capture.ErrTaskNotExists)
}

func TestService_Start_SecondStartFails(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	_, err = f.service.Start(context.Background(), task.ID, testSettings())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := f.registry.Lookup(task.ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.service.Start(context.Background(), task.ID, testSettings())
	require.ErrorIs(t, err, capture.ErrTaskRuntimeExists)
}

func TestService_Start_LoginFormNotReadyReportsFailure(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(false)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	_, err = f.service.Start(context.Background(), task.ID, testSettings())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := f.store.FindByID(context.Background(), task.ID)
		return err == nil && stored.StageReport == "failed:could_not_get_login_form"
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := f.registry.Lookup(task.ID)
	require.False(t, ok)
	require.Eventually(t, func() bool {
		return f.counters.Capturing() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_Stop_WithoutRuntimeFails(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	_, err = f.service.Stop(context.Background(), task.ID)
	require.ErrorIs(t, err, capture.ErrTaskNotInitialized)
}

type stubRuntime struct {
	state    capture.RuntimeState
	started  bool
	stopped  bool
	startErr error
}

func (s *stubRuntime) State() capture.RuntimeState { return s.state }
func (s *stubRuntime) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}
func (s *stubRuntime) Stop() { s.stopped = true }
func (s *stubRuntime) Snapshot() capture.RuntimeSnapshot {
	return capture.RuntimeSnapshot{State: s.state}
}

func TestService_StopAndResume_Transitions(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	rt := &stubRuntime{state: capture.RuntimeRunning}
	require.NoError(t, f.registry.Register(task.ID, rt))

	details, err := f.service.Stop(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, rt.stopped)
	require.Equal(t, "task_has_been_stopped", details.StageReport)

	_, err = f.service.Resume(context.Background(), task.ID)
	require.ErrorIs(t, err, capture.ErrRuntimeRunning)

	rt.state = capture.RuntimeStopped
	details, err = f.service.Resume(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, rt.started)
	require.Equal(t, "task_resumed", details.StageReport)
}

func TestService_Resume_WithoutRuntimeFails(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	_, err = f.service.Resume(context.Background(), task.ID)
	require.ErrorIs(t, err, capture.ErrTaskNotInitialized)
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	rt := &stubRuntime{state: capture.RuntimeRunning}
	require.NoError(t, f.registry.Register(task.ID, rt))
	require.ErrorIs(t, f.service.Delete(context.Background(), task.ID), capture.ErrRuntimeRunning)

	rt.state = capture.RuntimeStopped
	require.NoError(t, f.service.Delete(context.Background(), task.ID))

	_, ok := f.registry.Lookup(task.ID)
	require.False(t, ok)
	_, err = f.store.FindByID(context.Background(), task.ID)
	require.ErrorIs(t, err, capture.ErrTaskNotExists)
}

func TestService_QueryAndList(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	task, err := f.service.Create(context.Background(), "20251")
	require.NoError(t, err)

	details, err := f.service.Query(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, task, details.Task)
	require.Nil(t, details.Runtime)

	page, err := f.service.List(context.Background(), capture.PageRequest{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
}

func TestService_ValidateSettings(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	require.NoError(t, f.service.ValidateSettings(context.Background(), testSettings()))
}

func TestService_TermsAndCounts(t *testing.T) {
	t.Parallel()

	srv := newKingoServer(true)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	terms, err := f.service.Terms(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"20251": "2025-2026-1"}, terms)

	capturing, importing := f.service.Counts()
	require.Equal(t, int64(0), capturing)
	require.Equal(t, int64(0), importing)
}
