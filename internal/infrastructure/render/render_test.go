package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.LoadJSON([]byte(`{
		"recon-complete": {"subject": "Reconciliation {{.county}} done", "body": "Rows: {{.rows}}"}
	}`)))

	subject, body, err := r.Render("recon-complete", []byte(`{"county":"Henry","rows":42}`))
	require.NoError(t, err)
	assert.Equal(t, "Reconciliation Henry done", subject)
	assert.Equal(t, "Rows: 42", body)
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	r := New()
	_, _, err := r.Render("missing", nil)
	require.Error(t, err)

	require.Error(t, r.Register("bad", Template{Subject: "{{.x"}))

	require.NoError(t, r.Register("ok", Template{Subject: "s", Body: "b"}))
	_, _, err = r.Render("ok", []byte(`not json`))
	require.Error(t, err)
}
