package resolve

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("//"), 0o644))
	}
	return fs
}

func TestResolve(t *testing.T) {
	fs := newFs(t,
		"/p/src/index.js",
		"/p/src/a.js",
		"/p/src/data.json",
		"/p/src/lib/index.js",
		"/p/shared.js",
	)
	r := New(fs, []string{".js", ".json"}, nil)

	tests := []struct {
		request string
		want    string
	}{
		{"./a", "/p/src/a.js"},
		{"./a.js", "/p/src/a.js"},
		{"./data", "/p/src/data.json"},
		{"./lib", "/p/src/lib/index.js"},
		{"../shared", "/p/shared.js"},
		{"/p/src/a", "/p/src/a.js"},
		{"./a?raw#x", "/p/src/a.js?raw#x"},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			res, err := r.Resolve("/p/src/index.js", tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Resource.String())
		})
	}
}

func TestResolveRecordsMissingCandidates(t *testing.T) {
	r := New(newFs(t, "/p/b.json"), []string{".js", ".json"}, nil)
	res, err := r.Resolve("/p/a.js", "./b")
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/b", "/p/b.js"}, res.Missing)
	assert.Equal(t, "/p/b.json", res.Resource.Path)
}

func TestResolveErrors(t *testing.T) {
	r := New(newFs(t, "/p/a.js"), []string{".js"}, nil)

	_, err := r.Resolve("/p/a.js", "./missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve("/p/a.js", "react")
	assert.ErrorIs(t, err, ErrUnsupportedRequest)
}

func TestResolveEntry(t *testing.T) {
	r := New(newFs(t, "/p/src/index.js", "/p/main.js"), []string{".js"}, nil)

	for _, request := range []string{"./src", "src/index", "/p/src/index.js"} {
		res, err := r.ResolveEntry("/p", request)
		require.NoError(t, err, request)
		assert.Equal(t, "/p/src/index.js", res.Resource.Path)
	}

	res, err := r.ResolveEntry("/p", "./main?entry")
	require.NoError(t, err)
	assert.Equal(t, "/p/main.js?entry", res.Resource.String())

	_, err = r.ResolveEntry("/p", "./nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
