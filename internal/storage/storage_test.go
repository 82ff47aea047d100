package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"photo-trade-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestWatermarker_Derive(t *testing.T) {
	w := NewWatermarker("PhotoTrade")
	assert.Equal(t, "(c) alice - PhotoTrade", w.Caption("alice"))

	out, err := w.Derive(solidPNG(t, 320, 240), "alice")
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())

	// the bottom strip is darkened relative to the untouched top-left corner
	_, _, topB, _ := img.At(2, 2).RGBA()
	_, _, bandB, _ := img.At(2, 237).RGBA()
	assert.Less(t, bandB, topB)
}

func TestWatermarker_TinyImage(t *testing.T) {
	w := NewWatermarker("PhotoTrade")
	out, err := w.Derive(solidPNG(t, 8, 8), "a-very-long-username")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestWatermarker_RejectsOversizedCanvas(t *testing.T) {
	w := NewWatermarker("PhotoTrade")
	w.maxPixels = 1000
	_, err := w.Derive(solidPNG(t, 320, 240), "alice")
	assert.ErrorContains(t, err, "exceeds 1000 pixels")

	_, err = w.Derive(solidPNG(t, 40, 25), "alice")
	assert.NoError(t, err)
}

func TestWatermarker_RejectsGarbage(t *testing.T) {
	w := NewWatermarker("PhotoTrade")
	_, err := w.Derive([]byte("definitely not an image"), "alice")
	assert.ErrorContains(t, err, "failed to decode image")
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		f.mu.Lock()
		delete(f.objects, r.URL.Path)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.objects[r.URL.Path] = body
	f.types[r.URL.Path] = r.Header.Get("Content-Type")
	f.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestStore(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), config.AWSConfig{
		Region:     "us-east-1",
		S3Bucket:   "photos",
		AccessKey:  "test-access",
		SecretKey:  "test-secret",
		Endpoint:   endpoint,
		PathStyle:  true,
		PresignTTL: 5 * time.Minute,
	})
	require.NoError(t, err)
	return store
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store := newTestStore(t, srv.URL)
	require.NoError(t, store.Put(context.Background(), "watermarked-abc.jpg", []byte("jpeg-bytes"), "image/jpeg"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Contains(t, fake.objects, "/photos/watermarked-abc.jpg")
	assert.Contains(t, string(fake.objects["/photos/watermarked-abc.jpg"]), "jpeg-bytes")
	assert.Equal(t, "image/jpeg", fake.types["/photos/watermarked-abc.jpg"])
}

func TestS3Store_Delete(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store := newTestStore(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "abc.jpg", []byte("raw"), "image/jpeg"))
	require.NoError(t, store.Delete(ctx, "abc.jpg"))
	require.NoError(t, store.Delete(ctx, "never-written.jpg"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.NotContains(t, fake.objects, "/photos/abc.jpg")
}

func TestS3Store_PresignGet(t *testing.T) {
	store := newTestStore(t, "http://objects.local:9000")

	url, err := store.PresignGet(context.Background(), "watermarked-abc.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://objects.local:9000/photos/watermarked-abc.jpg?"))
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.AWSConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
