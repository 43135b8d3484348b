package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserver/internal/imagecache"
)

func TestGetImagePNG(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/image?var=temp&width=4&height=4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestGetImageMissingVar(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/image", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImageInvalidBBox(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/image?var=temp&bbox=1,2,3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImageServesFromCacheOnSecondRequest(t *testing.T) {
	deps := testDeps(t)
	deps.ImageCache = imagecache.New(8)
	deps.Revision = "rev-1"

	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, deps)

	req1 := httptest.NewRequest(http.MethodGet, "/image?var=temp&width=4&height=4", nil)
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	cacheKey := imagecache.Key(req1.URL.RawQuery, deps.Revision)
	_, ok := deps.ImageCache.Get(req1.Context(), cacheKey)
	assert.True(t, ok, "response should have been written into the image cache")

	req2 := httptest.NewRequest(http.MethodGet, "/image?var=temp&width=4&height=4", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, rec1.Body.Bytes(), rec2.Body.Bytes())
}
