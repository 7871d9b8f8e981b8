package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/explain"
	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/service"
	"github.com/Brownie44l1/skinlens/internal/storage/blob"
	"github.com/Brownie44l1/skinlens/internal/storage/memory"
)

const benignPrediction = `{"success":true,"prediction":"Benign","probability":0.0474,"confidence_level":"high"}`

type stubPredictor struct {
	body string
	err  error
}

func (p *stubPredictor) Predict(context.Context, []byte, string, []byte) (json.RawMessage, error) {
	if p.err != nil {
		return nil, p.err
	}
	return json.RawMessage(p.body), nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	return g.reply, g.err
}

type testAPI struct {
	router    *gin.Engine
	users     *memory.UserRepository
	predictor *stubPredictor
	generator *stubGenerator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop()
	dir := t.TempDir()
	store, err := blob.NewLocalStore(dir, "http://localhost:8000")
	require.NoError(t, err)

	users := memory.NewUserRepository()
	uploads := memory.NewUploadRepository()
	predictor := &stubPredictor{body: benignPrediction}
	generator := &stubGenerator{reply: "This lesion looks benign."}
	m := metrics.New("api_test")

	h := NewHandler(Services{
		Accounts:    service.NewAccountService(users, memory.NewSessionRepository(), time.Hour, 24*time.Hour),
		Posts:       service.NewPostService(memory.NewPostRepository()),
		Uploads:     service.NewUploadService(uploads, store, predictor, generator, m, log),
		Escalations: service.NewEscalationService(memory.NewEscalationRepository(), uploads, users),
		Chat:        service.NewChatService(generator),
	}, log, 1<<20)

	return &testAPI{
		router:    NewRouter(RouterConfig{Handler: h, Metrics: m, Log: log, ImagesDir: dir}),
		users:     users,
		predictor: predictor,
		generator: generator,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) signup(t *testing.T, username string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/signup/", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Access string `json:"access"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Access)
	return resp.Access
}

func (a *testAPI) upload(t *testing.T, token, metadata string) *httptest.ResponseRecorder {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 90, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "lesion.png")
	require.NoError(t, err)
	_, err = part.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("metadata", metadata))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAccountFlow(t *testing.T) {
	a := newTestAPI(t)
	token := a.signup(t, "alice")

	w := a.do(t, http.MethodGet, "/api/me/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[meView](t, w)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, entity.RolePatient, me.Role)

	w = a.do(t, http.MethodPost, "/api/signup/", "", gin.H{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/token/", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/login/", "", gin.H{"username": "alice", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decode[tokenView](t, w)
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)

	w = a.do(t, http.MethodPost, "/api/token/refresh/", "", gin.H{"refresh": tokens.Refresh})
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := decode[tokenView](t, w)
	assert.NotEqual(t, tokens.Access, refreshed.Access)
	assert.Equal(t, tokens.Refresh, refreshed.Refresh)

	w = a.do(t, http.MethodPost, "/api/signout/", refreshed.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/me/", refreshed.Access, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth(t *testing.T) {
	a := newTestAPI(t)

	for _, header := range []string{"", "Bearer", "Bearer nope", "Token abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestPostsAndComments(t *testing.T) {
	a := newTestAPI(t)
	token := a.signup(t, "bob")

	w := a.do(t, http.MethodPost, "/api/post/", "", gin.H{"content": "anonymous"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/post/", token, gin.H{"content": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[postView](t, w)
	w = a.do(t, http.MethodPost, "/api/post/", token, gin.H{"content": "second"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/comment/", token, gin.H{"post": 1, "comment": "numeric"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	// the web client sends the id as a string
	w = a.do(t, http.MethodPost, "/api/comment/", token, gin.H{"post": "1", "comment": "string"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/comment/", token, gin.H{"post": 99, "comment": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/posts/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	posts := decode[[]postView](t, w)
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[0].Content)
	assert.Equal(t, 0, posts[0].CommentsCount)
	assert.Equal(t, 2, posts[1].CommentsCount)
	assert.Equal(t, "bob", posts[1].User.Username)

	w = a.do(t, http.MethodGet, "/api/posts/1/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[postDetailView](t, w)
	assert.Equal(t, first.ID, detail.ID)
	require.Len(t, detail.Comments, 2)

	w = a.do(t, http.MethodGet, "/api/posts/42/", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodGet, "/api/posts/abc/", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload(t *testing.T) {
	a := newTestAPI(t)
	token := a.signup(t, "carol")

	w := a.upload(t, token, `{"age": 52, "sex": "female", "notes": "itchy"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	up := decode[uploadView](t, w)
	assert.Equal(t, "carol", up.User.Username)
	assert.Contains(t, up.ImageURL, blob.URLPrefix)
	assert.JSONEq(t, benignPrediction, string(up.Prediction))
	assert.Equal(t, "This lesion looks benign.", up.Explanation)
	assert.Contains(t, string(up.Metadata), "itchy")

	// stored image is served back
	req := httptest.NewRequest(http.MethodGet, blob.URLPrefix+up.Image, nil)
	served := httptest.NewRecorder()
	a.router.ServeHTTP(served, req)
	assert.Equal(t, http.StatusOK, served.Code)

	w = a.do(t, http.MethodGet, "/api/uploads/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]uploadView](t, w), 1)

	other := a.signup(t, "dave")
	w = a.do(t, http.MethodGet, "/api/uploads/", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]uploadView](t, w))
}

func TestUpload_DownstreamFailures(t *testing.T) {
	a := newTestAPI(t)
	token := a.signup(t, "erin")
	a.predictor.err = errors.New("connection refused")
	a.generator.err = errors.New("quota exceeded")

	w := a.upload(t, token, `{"age": 40}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	up := decode[uploadView](t, w)
	assert.Equal(t, "null", string(up.Prediction))
	assert.Empty(t, up.Explanation)
}

func TestUpload_BadInput(t *testing.T) {
	a := newTestAPI(t)
	token := a.signup(t, "frank")

	w := a.upload(t, token, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/upload/", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEscalations(t *testing.T) {
	a := newTestAPI(t)
	patient := a.signup(t, "gina")
	stranger := a.signup(t, "hank")
	doctor := a.signup(t, "irene")
	require.NoError(t, a.users.SetRole(context.Background(), "irene", entity.RoleDoctor))

	w := a.upload(t, patient, `{"age": 61}`)
	require.Equal(t, http.StatusCreated, w.Code)
	up := decode[uploadView](t, w)

	w = a.do(t, http.MethodPost, "/api/escalations/", stranger, gin.H{"image": up.ID, "reason": "mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/api/escalations/", patient, gin.H{"image": 404, "reason": "missing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/escalations/", patient, gin.H{
		"image":          up.ID,
		"reason":         "growing fast",
		"contact_number": "+15550100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	esc := decode[escalationView](t, w)
	assert.Equal(t, entity.StatusPending, esc.Status)

	w = a.do(t, http.MethodGet, "/api/escalations/", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]escalationView](t, w))

	w = a.do(t, http.MethodGet, "/api/escalations/", doctor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]escalationView](t, w), 1)

	path := "/api/escalations/" + strconv.FormatInt(esc.ID, 10) + "/"
	w = a.do(t, http.MethodGet, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, path, doctor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[escalationDetailView](t, w)
	assert.Equal(t, "gina", detail.Patient.Username)
	assert.Equal(t, up.ID, detail.Image.ID)

	w = a.do(t, http.MethodPatch, path, patient, gin.H{"status": "reviewed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPatch, path, doctor, gin.H{"status": "reviewed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StatusReviewed, decode[escalationView](t, w).Status)

	w = a.do(t, http.MethodPatch, path, doctor, gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPatch, path, doctor, gin.H{"status": "closed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.StatusClosed, decode[escalationView](t, w).Status)

	w = a.do(t, http.MethodPatch, "/api/escalations/77/", doctor, gin.H{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/escalations/abc/", doctor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodPatch, "/api/escalations/-1/", doctor, gin.H{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPathID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		raw  string
		want int64
		ok   bool
	}{
		{raw: "42", want: 42, ok: true},
		{raw: "abc"},
		{raw: "0"},
		{raw: "1.5"},
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Params = gin.Params{{Key: "id", Value: tc.raw}}

		id, err := pathID(c)
		if tc.ok {
			require.NoError(t, err, tc.raw)
			assert.Equal(t, tc.want, id)
			continue
		}
		assert.ErrorIs(t, err, entity.ErrNotFound, tc.raw)
		assert.NotErrorIs(t, err, entity.ErrInvalid, tc.raw)
		assert.Contains(t, err.Error(), tc.raw)
	}
}

func TestChat(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/chat/", "", gin.H{"message": "What is a mole?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "This lesion looks benign.", decode[map[string]string](t, w)["message"])

	w = a.do(t, http.MethodPost, "/api/chat/", "", gin.H{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	a.generator.err = errors.New("upstream 500")
	w = a.do(t, http.MethodPost, "/api/chat/", "", gin.H{"message": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	a.generator.err = explain.ErrDisabled
	w = a.do(t, http.MethodPost, "/api/chat/", "", gin.H{"message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = a.do(t, http.MethodOptions, "/api/upload/", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w = a.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api_test_http_requests_total")
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Bearer "))
	assert.Empty(t, bearerToken("Basic abc"))
}
