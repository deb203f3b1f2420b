package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/events"
)

// MockStore is an in-memory ports.ServiceStore. Err, when set, fails
// every call as a store error.
type MockStore struct {
	mu       sync.Mutex
	services []domain.Service
	Err      error
}

func (m *MockStore) List(ctx context.Context) ([]domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, &domain.StoreError{Op: "list", Err: m.Err}
	}
	return append([]domain.Service(nil), m.services...), nil
}

func (m *MockStore) Get(ctx context.Context, id int64) (domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domain.Service{}, &domain.StoreError{Op: "get", Err: m.Err}
	}
	for _, s := range m.services {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Service{}, &domain.StoreError{Op: "get", Err: domain.ErrServiceNotFound}
}

func (m *MockStore) Create(ctx context.Context, svc domain.Service) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, &domain.StoreError{Op: "create", Err: m.Err}
	}
	for _, s := range m.services {
		if s.Name == svc.Name {
			return 0, &domain.StoreError{Op: "create", Err: domain.ErrServiceNameTaken}
		}
	}
	svc.ID = int64(len(m.services) + 1)
	m.services = append(m.services, svc)
	return svc.ID, nil
}

func (m *MockStore) Update(ctx context.Context, id int64, svc domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return &domain.StoreError{Op: "update", Err: m.Err}
	}
	for i := range m.services {
		if m.services[i].ID == id {
			svc.ID = id
			m.services[i] = svc
			return nil
		}
	}
	return &domain.StoreError{Op: "update", Err: domain.ErrServiceNotFound}
}

// MockDiscovery implements ports.ContainerDiscovery.
type MockDiscovery struct {
	Containers []domain.Container
	Err        error
}

func (m *MockDiscovery) ListContainers(ctx context.Context) ([]domain.Container, error) {
	return m.Containers, m.Err
}

// MockDispatcher records dispatched services.
type MockDispatcher struct {
	mu       sync.Mutex
	Services []domain.Service
}

func (m *MockDispatcher) Dispatch(svc domain.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Services = append(m.Services, svc)
}

type testServer struct {
	app        *fiber.App
	store      *MockStore
	discovery  *MockDiscovery
	dispatcher *MockDispatcher
	bus        *events.Bus
	views      *Views
}

func newTestServer(t *testing.T, ctx context.Context, proxyDomain string) *testServer {
	t.Helper()
	s := &testServer{
		store:      &MockStore{},
		discovery:  &MockDiscovery{},
		dispatcher: &MockDispatcher{},
		bus:        events.NewBus(16, nil),
	}
	s.views = NewViews(s.store, s.discovery, nil)
	h := Handlers{
		Services: NewServiceHandler(s.store, s.views, s.dispatcher, s.bus, nil),
		Events:   NewEventsHandler(ctx, s.bus, s.views, nil),
	}
	if proxyDomain != "" {
		h.Proxy = NewProxyHandler(proxyDomain, s.store, s.views, nil)
	}
	s.app = NewApp(h)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func nextEvent(t *testing.T, sub *events.Subscription) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	return ev
}

const blogJSON = `{"name":"blog","compose_name":"web","repo_url":"git@example.com:blog.git","access_url":"http://127.0.0.1:8081"}`

func TestCreateService(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	sub := s.bus.Subscribe()
	defer sub.Close()
	nextEvent(t, sub)

	code, body := s.do(t, http.MethodPost, "/api/v1/services", blogJSON)
	require.Equal(t, fiber.StatusCreated, code, body)

	var got domain.Service
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, int64(1), got.ID)
	assert.True(t, got.Active)
	assert.Equal(t, domain.EventAllStatus, nextEvent(t, sub).Kind)

	code, _ = s.do(t, http.MethodPost, "/api/v1/services", blogJSON)
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestCreateService_Invalid(t *testing.T) {
	s := newTestServer(t, context.Background(), "")

	code, body := s.do(t, http.MethodPost, "/api/v1/services", `{"name":"../etc","compose_name":"web","repo_url":"r"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, body, "single path segment")

	code, _ = s.do(t, http.MethodPost, "/api/v1/services", `{"name":`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestGetAndUpdateService(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	_, err := s.store.Create(context.Background(), domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r"})
	require.NoError(t, err)

	code, body := s.do(t, http.MethodGet, "/api/v1/services/1", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, `"name":"blog"`)

	code, _ = s.do(t, http.MethodGet, "/api/v1/services/9", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/services/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, body, "positive integer")

	code, _ = s.do(t, http.MethodPut, "/api/v1/services/1", strings.Replace(blogJSON, "blog.git", "blog2.git", 1))
	require.Equal(t, fiber.StatusOK, code)
	svc, err := s.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "git@example.com:blog2.git", svc.RepoURL)

	code, _ = s.do(t, http.MethodPut, "/api/v1/services/9", blogJSON)
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestListServices_DatabaseError(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	s.store.Err = errors.New("disk I/O error")

	code, body := s.do(t, http.MethodGet, "/api/v1/services", "")
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Contains(t, body, msgDatabaseError)
	assert.NotContains(t, body, "disk")
}

func TestDeploy(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	_, err := s.store.Create(context.Background(), domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r"})
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/api/v1/services/1/deploy", "")
	require.Equal(t, fiber.StatusAccepted, code)
	assert.Contains(t, body, "Deployment requested...")
	require.Len(t, s.dispatcher.Services, 1)
	assert.Equal(t, "blog", s.dispatcher.Services[0].Name)
}

func TestDeploy_StoreFailurePublishesUnknown(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	sub := s.bus.Subscribe()
	defer sub.Close()
	nextEvent(t, sub)

	code, _ := s.do(t, http.MethodPost, "/api/v1/services/3/deploy", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	ev := nextEvent(t, sub)
	assert.Equal(t, domain.EventUnknown, ev.Kind)
	assert.Contains(t, ev.Message, "service not found")

	s.store.Err = errors.New("database is locked")
	code, body := s.do(t, http.MethodPost, "/api/v1/services/3/deploy", "")
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Contains(t, body, msgDatabaseError)
	assert.Equal(t, domain.EventUnknown, nextEvent(t, sub).Kind)
	assert.Empty(t, s.dispatcher.Services)
}

func TestRequestAllStatus(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	sub := s.bus.Subscribe()
	defer sub.Close()
	nextEvent(t, sub)

	code, body := s.do(t, http.MethodPost, "/api/v1/all_status", "")
	assert.Equal(t, fiber.StatusAccepted, code)
	assert.JSONEq(t, `{"subscribers":1}`, body)
	assert.Equal(t, domain.EventAllStatus, nextEvent(t, sub).Kind)
}

type statusView struct {
	Type string `json:"type"`
	App  struct {
		Label string `json:"label"`
		Class string `json:"class"`
	} `json:"app"`
	Services []struct {
		Name   string `json:"name"`
		Status struct {
			Label string `json:"label"`
			Class string `json:"class"`
		} `json:"status"`
	} `json:"services"`
	Error string `json:"error"`
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	ctx := context.Background()
	_, _ = s.store.Create(ctx, domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r"})
	_, _ = s.store.Create(ctx, domain.Service{Name: "wiki", ComposeName: "app", RepoURL: "r"})
	s.discovery.Containers = []domain.Container{{Labels: "|||blog|||=", State: domain.StateRunning}}

	code, body := s.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, fiber.StatusOK, code)

	var view statusView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Equal(t, "all_status", view.Type)
	assert.Equal(t, "Connected", view.App.Label)
	require.Len(t, view.Services, 2)
	assert.Equal(t, "Running", view.Services[0].Status.Label)
	assert.Equal(t, "success", view.Services[0].Status.Class)
	assert.Equal(t, "Inactive", view.Services[1].Status.Label)
	assert.Empty(t, view.Error)
}

func TestStatus_DiscoveryFailure(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	_, _ = s.store.Create(context.Background(), domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r"})
	s.discovery.Err = domain.NewError(domain.ErrCommand, errors.New("docker: not found"))

	code, body := s.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, fiber.StatusOK, code)

	var view statusView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Equal(t, "unknown", view.App.Class)
	assert.Equal(t, "Unknown status", view.Services[0].Status.Label)
	assert.Contains(t, view.Error, "docker: not found")
}

func TestStatus_DatabaseError(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	s.store.Err = errors.New("boom")

	code, body := s.do(t, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Contains(t, body, msgDatabaseError)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, context.Background(), "")
	s.bus.Subscribe().Close()

	code, body := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, "lighthouse_bus_subscribers")
}

func TestEventsStream_StartsWithConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestServer(t, ctx, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "event: connected\ndata: "), string(data))
	assert.Contains(t, string(data), `"label":"Connected"`)
	assert.Equal(t, 0, s.bus.Subscribers())
}

func TestViews_Render(t *testing.T) {
	store := &MockStore{}
	_, _ = store.Create(context.Background(), domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r"})
	views := NewViews(store, &MockDiscovery{}, nil)
	ctx := context.Background()

	view := views.Render(ctx, domain.ServiceUpdate(1, domain.NewStatus(domain.StatusCloning)))
	require.NotNil(t, view.Service)
	assert.Equal(t, "blog", view.Service.Name)
	assert.Equal(t, domain.StatusCloning, view.Service.Status.Kind)
	assert.Equal(t, "warning", view.App.Class)
	assert.Equal(t, "Service pending...", view.App.Label)

	view = views.Render(ctx, domain.ServiceUpdate(1, domain.NewStatus(domain.StatusCloneOrPullFailed)))
	assert.Equal(t, "Service failure", view.App.Label)
	assert.Equal(t, "error", view.App.Class)

	view = views.Render(ctx, domain.ServiceUpdate(42, domain.NewStatus(domain.StatusRunning)))
	assert.Nil(t, view.Service)
	assert.Equal(t, msgDatabaseError, view.Error)

	view = views.Render(ctx, domain.UnknownEvent("store get: boom"))
	assert.Equal(t, domain.EventUnknown, view.Type)
	assert.Equal(t, "store get: boom", view.Message)
	assert.Equal(t, "Service unknown", view.App.Label)
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello from %s%s", r.Host, r.URL.Path)
	}))
	defer upstream.Close()

	s := newTestServer(t, context.Background(), "apps.test")
	ctx := context.Background()
	_, _ = s.store.Create(ctx, domain.Service{Name: "blog", ComposeName: "web", RepoURL: "r", AccessURL: upstream.URL, Active: true})
	_, _ = s.store.Create(ctx, domain.Service{Name: "wiki", ComposeName: "web", RepoURL: "r", AccessURL: upstream.URL, Active: true})
	s.discovery.Containers = []domain.Container{{Labels: "|||blog|||=", State: domain.StateRunning}}

	request := func(host, path string) (int, string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Host = host
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(data)
	}

	code, body := request("blog.apps.test", "/index.html")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, "/index.html")

	code, _ = request("wiki.apps.test", "/")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)

	// Unknown services and other hosts reach the API.
	code, _ = request("nope.apps.test", "/api/v1/services")
	assert.Equal(t, fiber.StatusOK, code)
	code, _ = request("example.com", "/api/v1/services")
	assert.Equal(t, fiber.StatusOK, code)
}
