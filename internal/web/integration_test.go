package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapshelf/internal/capture"
	"snapshelf/internal/classify"
	"snapshelf/internal/homebox"
	"snapshelf/internal/locations"
	"snapshelf/internal/photocache"
	"snapshelf/internal/retry"
	"snapshelf/internal/sessions"
	"snapshelf/internal/web"
)

// fakeHomebox is a minimal in-memory stand-in for the remote inventory API,
// covering exactly the endpoints the client uses.
type fakeHomebox struct {
	mux *http.ServeMux

	mu          sync.Mutex
	items       map[string]map[string]any
	nextID      int
	createCalls int
	failCreates int // answer this many creates with a 500
	dropCreates int // kill the connection on this many creates
	attachName  map[string]string
	attachData  map[string][]byte
}

const testToken = "tok-integration"

func newFakeHomebox() *fakeHomebox {
	f := &fakeHomebox{
		mux:        http.NewServeMux(),
		items:      make(map[string]map[string]any),
		attachName: make(map[string]string),
		attachData: make(map[string][]byte),
	}

	f.mux.HandleFunc("POST /api/v1/users/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") == "" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		writeBody(w, http.StatusOK, map[string]string{"token": testToken})
	})

	f.mux.HandleFunc("GET /api/v1/locations", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeBody(w, http.StatusOK, []map[string]any{
			{"id": "1", "name": "Kitchen", "description": "[BOT] ground floor"},
			{"id": "2", "name": "Garage", "description": "[BOT] tools live here"},
		})
	})

	f.mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.createCalls++
		if f.dropCreates > 0 {
			f.dropCreates--
			hijackAndClose(w)
			return
		}
		if f.failCreates > 0 {
			f.failCreates--
			http.Error(w, "backend exploded", http.StatusInternalServerError)
			return
		}
		var in struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			LocationID  string `json:"locationId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		f.nextID++
		id := fmt.Sprintf("item-%d", f.nextID)
		f.items[id] = map[string]any{
			"id": id, "name": in.Name, "description": in.Description,
			"quantity": 1,
			"location": map[string]string{"id": in.LocationID, "name": locationName(in.LocationID)},
		}
		writeBody(w, http.StatusCreated, f.items[id])
	})

	f.mux.HandleFunc("POST /api/v1/items/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file part required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "read failed", http.StatusInternalServerError)
			return
		}
		id := r.PathValue("id")
		f.mu.Lock()
		f.attachName[id] = r.FormValue("name")
		f.attachData[id] = data
		f.mu.Unlock()
		writeBody(w, http.StatusCreated, map[string]string{"id": "att-1"})
	})

	f.mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]map[string]any, 0, len(f.items))
		q := strings.ToLower(r.URL.Query().Get("q"))
		for _, it := range f.items {
			if q != "" && !strings.Contains(strings.ToLower(it["name"].(string)), q) {
				continue
			}
			list = append(list, it)
		}
		writeBody(w, http.StatusOK, map[string]any{"items": list})
	})

	f.mux.HandleFunc("GET /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		it, ok := f.items[r.PathValue("id")]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeBody(w, http.StatusOK, it)
	})

	f.mux.HandleFunc("PUT /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		it, ok := f.items[id]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var in struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			LocationID  string `json:"locationId"`
			Quantity    int    `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		it["name"] = in.Name
		it["description"] = in.Description
		it["quantity"] = in.Quantity
		it["location"] = map[string]string{"id": in.LocationID, "name": locationName(in.LocationID)}
		writeBody(w, http.StatusOK, it)
	})

	f.mux.HandleFunc("DELETE /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.items[id]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		delete(f.items, id)
		w.WriteHeader(http.StatusNoContent)
	})

	return f
}

func (f *fakeHomebox) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+testToken
}

func (f *fakeHomebox) item(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

func (f *fakeHomebox) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// hijackAndClose kills the connection mid-request so the client sees a
// transport failure instead of a status.
func hijackAndClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("test server must support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err == nil {
		conn.Close()
	}
}

func locationName(id string) string {
	switch id {
	case "1":
		return "Kitchen"
	case "2":
		return "Garage"
	default:
		return "Unknown"
	}
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stubBackend returns a fixed classification for every photo.
type stubBackend struct {
	mu  sync.Mutex
	res classify.Result
}

func (b *stubBackend) Classify(_ context.Context, _ classify.Request) (classify.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.res, nil
}

// newTestStack wires the real client, workflow and server against the fake
// remote and returns the public test server plus the fake for assertions.
func newTestStack(t *testing.T) (*httptest.Server, *fakeHomebox) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	upstream := newFakeHomebox()
	upstreamSrv := httptest.NewServer(upstream.mux)
	t.Cleanup(upstreamSrv.Close)

	client := homebox.New(homebox.Config{
		BaseURL:  upstreamSrv.URL,
		Username: "bot@example.com",
		Password: "secret",
		Retry:    retry.Policy{MaxAttempts: 2, Delay: 5 * time.Millisecond},
	}, logger)

	cache, err := photocache.New(t.TempDir(), logger)
	require.NoError(t, err)

	backend := &stubBackend{res: classify.Result{
		Name:              "Cordless Drill",
		Description:       "18V drill with battery",
		SuggestedLocation: "garage",
	}}
	workflow := capture.New(
		sessions.NewMemory(),
		client,
		classify.NewService(backend, logger),
		cache,
		capture.Config{FilterMode: locations.FilterMarker, Marker: "[BOT]"},
		logger,
	)

	srv := httptest.NewServer(web.NewServer(workflow, client, logger))
	t.Cleanup(srv.Close)
	return srv, upstream
}

// apiResult mirrors the JSON the session routes return.
type apiResult struct {
	State  string `json:"state"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Draft  *struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		LocationID   string `json:"locationId"`
		LocationName string `json:"locationName"`
		ImagePath    string `json:"imagePath"`
	} `json:"draft"`
	Locations []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"locations"`
	Item *struct {
		ID                string `json:"id"`
		Name              string `json:"name"`
		LocationID        string `json:"locationId"`
		PhotoUploadFailed bool   `json:"photoUploadFailed"`
	} `json:"item"`
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// buildPhotoForm creates a multipart body with the image plus extra fields.
func buildPhotoForm(t *testing.T, imageData []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(imageData)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func postPhoto(t *testing.T, srv *httptest.Server, sid string, data []byte, fields map[string]string) (int, apiResult) {
	t.Helper()
	body, contentType := buildPhotoForm(t, data, fields)
	resp, err := http.Post(srv.URL+"/sessions/"+sid+"/photo", contentType, body)
	require.NoError(t, err)
	return decodeResult(t, resp)
}

func postForm(t *testing.T, srv *httptest.Server, path string, form url.Values) (int, apiResult) {
	t.Helper()
	resp, err := http.PostForm(srv.URL+path, form)
	require.NoError(t, err)
	return decodeResult(t, resp)
}

func decodeResult(t *testing.T, resp *http.Response) (int, apiResult) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var res apiResult
	require.NoError(t, json.Unmarshal(raw, &res), "body: %s", raw)
	return resp.StatusCode, res
}

func TestIntegrationCaptureLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, upstream := newTestStack(t)
	photo := testPNG(t)

	status, res := postPhoto(t, srv, "chat1", photo, map[string]string{"caption": "from the garage shelf"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirming", res.State)
	assert.Equal(t, "ok", res.Code)
	require.NotNil(t, res.Draft)
	assert.Equal(t, "Cordless Drill", res.Draft.Name)
	assert.Equal(t, "2", res.Draft.LocationID)
	assert.Len(t, res.Locations, 2)

	// Open the name prompt, then submit a replacement.
	status, res = postForm(t, srv, "/sessions/chat1/edit/name", url.Values{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "editing_name", res.State)

	status, res = postForm(t, srv, "/sessions/chat1/edit/name", url.Values{"value": {"Shop Vac"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirming", res.State)
	assert.Equal(t, "Shop Vac", res.Draft.Name)

	// Refile into the kitchen.
	status, res = postForm(t, srv, "/sessions/chat1/location", url.Values{"location_id": {"1"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1", res.Draft.LocationID)
	assert.Equal(t, "Kitchen", res.Draft.LocationName)

	status, res = postForm(t, srv, "/sessions/chat1/confirm", url.Values{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_photo", res.State)
	assert.Equal(t, "ok", res.Code)
	require.NotNil(t, res.Item)

	// The remote saw the edited item and the original photo bytes.
	stored := upstream.item(res.Item.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Shop Vac", stored["name"])
	upstream.mu.Lock()
	assert.Equal(t, photo, upstream.attachData[res.Item.ID])
	assert.True(t, strings.HasPrefix(upstream.attachName[res.Item.ID], "draft_chat1_"))
	upstream.mu.Unlock()

	// The session is gone.
	resp, err := http.Get(srv.URL + "/sessions/chat1")
	require.NoError(t, err)
	status, res = decodeResult(t, resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_photo", res.State)
	assert.Nil(t, res.Draft)
}

func TestIntegrationRejectsGarbagePhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestStack(t)

	body, contentType := buildPhotoForm(t, []byte("definitely not an image"), nil)
	resp, err := http.Post(srv.URL+"/sessions/chat1/photo", contentType, body)
	require.NoError(t, err)

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	status, res := decodeResult(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_image", res.Code)
	assert.Equal(t, "awaiting_photo", res.State)
}

func TestIntegrationConfirmRemoteRejection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, upstream := newTestStack(t)

	status, _ := postPhoto(t, srv, "chat1", testPNG(t), nil)
	require.Equal(t, http.StatusOK, status)

	// A 500 is a definitive answer: no retry, the commit surfaces as
	// rejected and the draft survives.
	upstream.mu.Lock()
	upstream.failCreates = 1
	upstream.mu.Unlock()

	status, res := postForm(t, srv, "/sessions/chat1/confirm", url.Values{})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "remote_rejected", res.Code)
	assert.Equal(t, "confirming", res.State)
	require.NotNil(t, res.Draft)
	assert.Contains(t, res.Detail, "500")
	assert.Equal(t, 1, upstream.creates())

	// The next confirm goes through unchanged.
	status, res = postForm(t, srv, "/sessions/chat1/confirm", url.Values{})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", res.Code)
	require.NotNil(t, res.Item)
	assert.Equal(t, 2, upstream.creates())
}

func TestIntegrationConfirmRetriesDroppedConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, upstream := newTestStack(t)

	status, _ := postPhoto(t, srv, "chat1", testPNG(t), nil)
	require.Equal(t, http.StatusOK, status)

	// The first create attempt dies on the wire; the executor retries and
	// the caller sees a single clean success.
	upstream.mu.Lock()
	upstream.dropCreates = 1
	upstream.mu.Unlock()

	status, res := postForm(t, srv, "/sessions/chat1/confirm", url.Values{})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", res.Code)
	require.NotNil(t, res.Item)
	assert.Equal(t, 2, upstream.creates())
}

func TestIntegrationCancelDiscardsDraft(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, upstream := newTestStack(t)

	status, _ := postPhoto(t, srv, "chat1", testPNG(t), nil)
	require.Equal(t, http.StatusOK, status)

	status, res := postForm(t, srv, "/sessions/chat1/cancel", url.Values{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "awaiting_photo", res.State)
	assert.Nil(t, res.Draft)

	upstream.mu.Lock()
	assert.Empty(t, upstream.items, "cancel must not create anything remotely")
	upstream.mu.Unlock()
}

func TestIntegrationItemRoutes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, upstream := newTestStack(t)

	// Capture one item end to end so the remote has something to manage.
	status, _ := postPhoto(t, srv, "chat1", testPNG(t), nil)
	require.Equal(t, http.StatusOK, status)
	status, res := postForm(t, srv, "/sessions/chat1/confirm", url.Values{})
	require.Equal(t, http.StatusOK, status)
	itemID := res.Item.ID

	// Search finds it.
	resp, err := http.Get(srv.URL + "/items?q=drill")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Items []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Items, 1)
	assert.Equal(t, itemID, listing.Items[0].ID)

	// Move it to the kitchen.
	moveResp, err := http.PostForm(srv.URL+"/items/"+itemID+"/move", url.Values{"location_id": {"1"}})
	require.NoError(t, err)
	moveResp.Body.Close()
	require.Equal(t, http.StatusNoContent, moveResp.StatusCode)
	loc := upstream.item(itemID)["location"].(map[string]string)
	assert.Equal(t, "1", loc["id"])

	// And delete it.
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/items/"+itemID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)
	assert.Nil(t, upstream.item(itemID))
}
