package stockanalysis

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	body, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(body)
}

func TestLocate(t *testing.T) {
	payload, ok := Locate(readFixture(t, "embedded.html"))
	require.True(t, ok)
	require.True(t, strings.HasPrefix(payload.Rows, "["))
	require.True(t, strings.HasSuffix(payload.Rows, "]"))
	require.True(t, strings.HasPrefix(payload.Views, "{default:"))
	require.False(t, payload.HasQuery)

	payload, ok = Locate(readFixture(t, "overview_only.html"))
	require.True(t, ok)
	require.True(t, payload.HasQuery)
	require.Contains(t, payload.Query, `index:"nase"`)
}

func TestLocateSkipsWeakScripts(t *testing.T) {
	weak := `<script>stockData:[1], pagination:false, initialDynamicViews: none</script>`
	strong := `<script type="module">stockData:[{no:1}],pagination:false,initialDynamicViews:{items:[]},columnId:"x"</script>`

	payload, ok := Locate(weak + strong)
	require.True(t, ok)
	require.Equal(t, "[{no:1}]", payload.Rows)
	require.Equal(t, "{items:[]}", payload.Views)

	_, ok = Locate(weak)
	require.False(t, ok)

	_, ok = Locate(`<script>stockData:[{no:1}],pagination:false</script>`)
	require.False(t, ok)

	_, ok = Locate(`<html><body>no scripts</body></html>`)
	require.False(t, ok)

	_, ok = Locate(readFixture(t, "visible_table.html"))
	require.False(t, ok)
}
