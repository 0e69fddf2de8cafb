package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-rank-crawler/internal/fetcher"
)

func TestClientRendered(t *testing.T) {
	t.Parallel()

	table := `<html><body><table><tbody>` +
		strings.Repeat(`<tr><td>#1</td><td>Alpha</td><td>10</td><td>1M</td><td>2B</td></tr>`, 40) +
		`</tbody></table></body></html>`

	tests := []struct {
		name string
		page fetcher.Page
		want bool
	}{
		{name: "empty body", page: fetcher.Page{StatusCode: http.StatusOK}, want: true},
		{name: "next shell", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(`<div id="__next"></div>`)}, want: true},
		{name: "nuxt shell", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(`<div id="__nuxt"></div>`)}, want: true},
		{name: "script heavy", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}, want: true},
		{name: "react root", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(`<div data-reactroot=""></div>`)}, want: true},
		{name: "whitespace only", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(" \n\t")}, want: true},
		{name: "server rendered table", page: fetcher.Page{StatusCode: http.StatusOK, Body: []byte(table)}, want: false},
		{name: "error status", page: fetcher.Page{StatusCode: http.StatusNotFound}, want: false},
	}
	h := NewHeuristic(0)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ClientRendered(tc.page))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyLengthThreshold)
	require.InDelta(t, 0.25, NewHeuristic(0).ScriptShare, 1e-9)
}
