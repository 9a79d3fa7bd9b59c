package echoapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	testutil "github.com/trezcool/shule/tests"
)

func newEchoContext(t *testing.T, query url.Values) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/?"+query.Encode(), nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestOrderingBind(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  []core.DBOrdering
	}{
		{name: "no params", query: url.Values{}},
		{name: "empty value", query: url.Values{"ordering": {""}}},
		{
			name:  "single ascending",
			query: url.Values{"ordering": {"student_id"}},
			want:  []core.DBOrdering{{Field: "student_id", Ascending: true}},
		},
		{
			name:  "descending with spaces",
			query: url.Values{"ordering": {"-total_score, student_id"}},
			want: []core.DBOrdering{
				{Field: "total_score"},
				{Field: "student_id", Ascending: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ord Ordering
			ord.Bind(newEchoContext(t, tt.query))
			if len(ord.Orderings) != len(tt.want) {
				t.Fatalf("got %d orderings, want %d", len(ord.Orderings), len(tt.want))
			}
			if len(tt.want) > 0 {
				testutil.Diff(t, tt.want, ord.Orderings)
			}
		})
	}
}
