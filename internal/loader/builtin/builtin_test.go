package builtin

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketlyz/rspack/internal/loader"
)

func runChain(t *testing.T, fs afero.Fs, resource string, chain ...loader.Loader) *loader.Result {
	t.Helper()
	res, err := loader.RunLoaders(context.Background(), loader.ParseResource(resource), chain, loader.WithFs(fs))
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *loader.Result) string {
	t.Helper()
	s, err := res.Content.AsText()
	require.NoError(t, err)
	return s
}

func create(t *testing.T, name string, options map[string]any) loader.Loader {
	t.Helper()
	l, err := Default().Create(name, options)
	require.NoError(t, err)
	return l
}

func TestRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{
		BannerName, JSONName, PitchStaticName, RawName, ReplaceName, TOMLName, YAMLName,
	}, r.Names())

	_, err := r.Create("builtin:unknown", nil)
	assert.Error(t, err)

	_, err = r.Create(BannerName, map[string]any{"banner": "x", "colour": "red"})
	assert.ErrorContains(t, err, "colour")
}

func TestIdentifierEmbedsOptions(t *testing.T) {
	a := create(t, BannerName, map[string]any{"banner": "/* a */", "footer": "//end"})
	b := create(t, BannerName, map[string]any{"footer": "//end", "banner": "/* a */"})
	c := create(t, BannerName, map[string]any{"banner": "/* c */"})

	assert.Equal(t, a.Identifier(), b.Identifier())
	assert.NotEqual(t, a.Identifier(), c.Identifier())
	assert.Equal(t, `builtin:banner?{"banner":"/* a */","footer":"//end"}`, a.Identifier().String())
	assert.Equal(t, "builtin:json", create(t, JSONName, nil).Identifier().String())
}

func TestBannerAndReplaceChain(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.js", []byte("console.log(__VERSION__)"), 0o644))

	res := runChain(t, fs, "/src/a.js",
		create(t, BannerName, map[string]any{"banner": "/*! v1 */"}),
		create(t, ReplaceName, map[string]any{"search": "__VERSION__", "replace": `"1.0.0"`}),
	)
	assert.Equal(t, "/*! v1 */\nconsole.log(\"1.0.0\")", text(t, res))
	assert.Empty(t, res.Warnings)
}

func TestReplaceRegexAndWarnings(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.js", []byte("let a1 = 1, a2 = 2"), 0o644))

	res := runChain(t, fs, "/a.js", create(t, ReplaceName, map[string]any{"search": `a(\d)`, "replace": "b$1", "regex": true}))
	assert.Equal(t, "let b1 = 1, b2 = 2", text(t, res))

	res = runChain(t, fs, "/a.js", create(t, ReplaceName, map[string]any{"search": "zzz"}))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "zzz")

	_, err := loader.RunLoaders(context.Background(), loader.ParseResource("/a.js"),
		[]loader.Loader{create(t, ReplaceName, map[string]any{"search": "zzz", "strict": "true"})}, loader.WithFs(fs))
	var le *loader.LoaderError
	require.ErrorAs(t, err, &le)

	_, err = Default().Create(ReplaceName, map[string]any{"search": "(", "regex": true})
	assert.Error(t, err)
}

func TestDataLoaders(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/c.json": `{"b": [1, 2], "a": "x"}`,
		"/c.yaml": "name: app\nports:\n  - 80\n  - 443\n1: one\n",
		"/c.toml": "name = \"app\"\n[server]\nport = 8080\n",
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(data), 0o644))
	}

	tests := []struct {
		loader string
		file   string
		want   string
	}{
		{JSONName, "/c.json", `module.exports = {"a":"x","b":[1,2]};` + "\n"},
		{YAMLName, "/c.yaml", `module.exports = {"1":"one","name":"app","ports":[80,443]};` + "\n"},
		{TOMLName, "/c.toml", `module.exports = {"name":"app","server":{"port":8080}};` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.loader, func(t *testing.T) {
			res := runChain(t, fs, tt.file, create(t, tt.loader, nil))
			assert.Equal(t, tt.want, text(t, res))
		})
	}

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("{"), 0o644))
	_, err := loader.RunLoaders(context.Background(), loader.ParseResource("/bad.json"),
		[]loader.Loader{create(t, JSONName, nil)}, loader.WithFs(fs))
	assert.ErrorContains(t, err, "parse json")
}

func TestRawLoader(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("hi \"there\""), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/a.bin", []byte{0xff, 0x01}, 0o644))

	res := runChain(t, fs, "/a.txt", create(t, RawName, nil))
	assert.Equal(t, `module.exports = "hi \"there\"";`+"\n", text(t, res))

	res = runChain(t, fs, "/a.bin", create(t, RawName, map[string]any{"mimetype": "image/png"}))
	assert.Equal(t, `module.exports = "data:image/png;base64,/wE=";`+"\n", text(t, res))
}

func TestPitchStatic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/stub.js", []byte("module.exports = {};"), 0o644))
	banner := create(t, BannerName, map[string]any{"banner": "// never"})

	res := runChain(t, fs, "/does-not-exist.js", banner, create(t, PitchStaticName, map[string]any{"content": "export default 1"}))
	assert.True(t, res.ShortCircuited())
	assert.Equal(t, "export default 1", text(t, res))

	res = runChain(t, fs, "/does-not-exist.js", create(t, PitchStaticName, map[string]any{"file": "/stub.js"}))
	assert.Equal(t, "module.exports = {};", text(t, res))
	assert.Equal(t, []string{"/stub.js"}, res.FileDependencies)

	_, err := Default().Create(PitchStaticName, map[string]any{"content": "a", "file": "b"})
	assert.Error(t, err)
}
