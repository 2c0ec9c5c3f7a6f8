package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLookupDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "74LS245 octal", r.URL.Query().Get("q"))
		fmt.Fprint(w, `[{"ref":"part-1","title":"Octal transceiver","score":0.91},{"ref":"part-2","title":"Bus driver","score":0.42}]`)
	}))
	defer srv.Close()

	lookup := NewHTTPLookup(srv.URL, srv.Client())
	results, err := lookup(context.Background(), "74LS245 octal")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Octal transceiver", results[0].Title)
	assert.Equal(t, "part-1", results[0].Ref)
	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
}

func TestHTTPLookupRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPLookup(srv.URL, srv.Client())(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPLookupHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPLookup(srv.URL, srv.Client())(ctx, "q")
	require.Error(t, err)
}
