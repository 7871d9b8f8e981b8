package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/model"
	"github.com/Brownie44l1/skinlens/internal/prediction"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

type fixedClassifier struct{ logit float32 }

func (f fixedClassifier) Logit(context.Context, preprocess.ImageTensor, []float32) (float32, error) {
	return f.logit, nil
}

func (fixedClassifier) Close() error { return nil }

func newHandler(logit float32, opts Options) *Handler {
	srv := model.NewServerWithClassifier(fixedClassifier{logit: logit}, model.DefaultMetadata(), model.BackendNative, zap.NewNop())
	return NewHandler(srv, metrics.New("test"), zap.NewNop(), opts)
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, image []byte, metadata *string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "lesion.jpg")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	if metadata != nil {
		require.NoError(t, mw.WriteField("metadata", *metadata))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) prediction.Response {
	t.Helper()
	var resp prediction.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func ptr(s string) *string { return &s }

func TestPredict_Success(t *testing.T) {
	h := newHandler(-3, Options{})
	rec := httptest.NewRecorder()
	h.Predict(rec, multipartRequest(t, jpegBytes(t), ptr(`{"age": 45, "gender": 1}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.True(t, resp.Success)
	assert.Equal(t, prediction.Benign, resp.Label)
	assert.Equal(t, 0.0474, resp.Probability)
	assert.Equal(t, prediction.High, resp.Confidence)
	assert.Empty(t, resp.Error)
}

func TestPredict_Failures(t *testing.T) {
	cases := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{"empty image", func(t *testing.T) *http.Request { return multipartRequest(t, []byte{}, ptr(`{}`)) }, http.StatusBadRequest},
		{"corrupt image", func(t *testing.T) *http.Request { return multipartRequest(t, []byte("GIF89a..."), ptr(`{}`)) }, http.StatusBadRequest},
		{"no image", func(t *testing.T) *http.Request { return multipartRequest(t, nil, ptr(`{}`)) }, http.StatusBadRequest},
		{"bad metadata", func(t *testing.T) *http.Request { return multipartRequest(t, jpegBytes(t), ptr(`{"age":`)) }, http.StatusBadRequest},
		{"no metadata", func(t *testing.T) *http.Request { return multipartRequest(t, jpegBytes(t), nil) }, http.StatusBadRequest},
		{"not multipart", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte(`{}`)))
		}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandler(0, Options{}).Predict(rec, tc.req(t))
			assert.Equal(t, tc.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Prediction)
		})

		t.Run(tc.name+" legacy status", func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandler(0, Options{LegacyErrorStatus: true}).Predict(rec, tc.req(t))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.False(t, decode(t, rec).Success)
		})
	}
}

func TestPredict_UploadTooLarge(t *testing.T) {
	h := newHandler(0, Options{MaxUploadSize: 64})
	rec := httptest.NewRecorder()
	h.Predict(rec, multipartRequest(t, jpegBytes(t), ptr(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(0, Options{}).Predict(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRootAndHealth(t *testing.T) {
	h := newHandler(0, Options{})

	rec := httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Skin Cancer Classification API","status":"running"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"backend":"native"`)
}
