package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTextFetchErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, 1<<20)
	_, err := e.Text(context.Background(), srv.URL+"/missing.pdf")
	require.ErrorIs(t, err, ErrFetch)
}

func TestTextFetchErrorOnUnreachableHost(t *testing.T) {
	e := NewExtractor(time.Second, 1<<20)
	_, err := e.Text(context.Background(), "http://127.0.0.1:1/doc.pdf")
	require.ErrorIs(t, err, ErrFetch)
}

func TestTextRejectsOversizedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, 1024)
	_, err := e.Text(context.Background(), srv.URL+"/big.pdf")
	require.ErrorIs(t, err, ErrFetch)
}

func TestTextParseErrorOnNonPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is just text, not a pdf"))
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, 1<<20)
	_, err := e.Text(context.Background(), srv.URL+"/fake.pdf")
	require.ErrorIs(t, err, ErrParse)
}

func TestTextHonoursContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(5*time.Second, 1<<20)
	_, err := e.Text(ctx, srv.URL+"/slow.pdf")
	require.ErrorIs(t, err, ErrFetch)
}
