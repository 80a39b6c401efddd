package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

func engineFor(t *testing.T, name, endpoint string) Engine {
	t.Helper()
	e, err := New(&config.OCRConfig{
		Engine:         name,
		Endpoint:       endpoint,
		TimeoutSeconds: 5,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	return e
}

func TestWordBoxEngine(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr", r.URL.Path)

		var req struct {
			Image string `json:"image"`
			DPI   int    `json:"dpi"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		assert.Equal(t, png, decoded)
		assert.Equal(t, 300, req.DPI)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"words": []map[string]interface{}{
				{"bbox": []int{10, 20, 90, 44}, "text": "Total", "confidence": 0.97},
				{"bbox": []int{100, 20, 160, 44}, "text": "42", "confidence": 0.91},
				{"bbox": []int{0, 0, 0, 0}, "text": "", "confidence": 0.1},
			},
		})
	}))
	defer srv.Close()

	e := engineFor(t, "easyocr", srv.URL)
	res, err := e.Recognize(context.Background(), Request{ImagePNG: png, DPI: 300})
	require.NoError(t, err)

	require.Len(t, res.Boxes, 2, "empty words are dropped")
	assert.Equal(t, "Total", res.Boxes[0].Text)
	assert.Equal(t, 10.0, res.Boxes[0].X)
	assert.Equal(t, 20.0, res.Boxes[0].Y)
	assert.Equal(t, 80.0, res.Boxes[0].W)
	assert.Equal(t, 24.0, res.Boxes[0].H)
	assert.Empty(t, res.Words, "word-box engines do not produce hOCR")
}

func TestPlainTextEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recognize", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "handwritten note"})
	}))
	defer srv.Close()

	e := engineFor(t, "trocr", srv.URL)
	res, err := e.Recognize(context.Background(), Request{ImagePNG: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "handwritten note", res.PlainText)
	assert.Empty(t, res.Boxes)
}

func TestHOCREngine(t *testing.T) {
	hocrHTML := `<html><body><div class='ocr_page'>
	  <span class='ocrx_word' title='bbox 10 20 90 44; x_wconf 95'>Invoice</span>
	  <span class='ocrx_word' title='bbox 100 20 180 44; x_wconf 92'>Total</span>
	</div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hocr", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(hocrHTML))
	}))
	defer srv.Close()

	e := engineFor(t, "ocrmypdf", srv.URL)
	res, err := e.Recognize(context.Background(), Request{PagePDF: []byte("%PDF")})
	require.NoError(t, err)

	require.Len(t, res.Words, 2)
	assert.Equal(t, "Invoice", res.Words[0].Text)
	assert.Equal(t, [4]int{10, 20, 90, 44}, res.Words[0].BBox)
	require.Len(t, res.Boxes, 2)
	assert.Equal(t, "Total", res.Boxes[1].Text)
}

func TestEngineErrors(t *testing.T) {
	t.Run("non-200 is an ocr failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}))
		defer srv.Close()

		e := engineFor(t, "paddleocr", srv.URL)
		_, err := e.Recognize(context.Background(), Request{ImagePNG: []byte("x")})
		assert.ErrorIs(t, err, kind.ErrOCRFailed)
	})

	t.Run("unreachable service is retryable", func(t *testing.T) {
		e := engineFor(t, "easyocr", "http://127.0.0.1:1")
		_, err := e.Recognize(context.Background(), Request{ImagePNG: []byte("x")})
		assert.ErrorIs(t, err, kind.ErrBackendUnavailable)
	})
}

func TestNew_UnknownEngine(t *testing.T) {
	_, err := New(&config.OCRConfig{Engine: "tesseract9000"}, hclog.NewNullLogger())
	assert.Error(t, err)
}

func TestProducesHOCR(t *testing.T) {
	assert.True(t, ProducesHOCR("ocrmypdf"))
	assert.True(t, ProducesHOCR("OCRmyPDF"))
	assert.False(t, ProducesHOCR("easyocr"))
	assert.False(t, ProducesHOCR("trocr"))
}
