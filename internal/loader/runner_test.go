package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketlyz/rspack/internal/identifier"
	"github.com/rocketlyz/rspack/internal/observability"
)

// stepLoader records every call into a shared log and appends its name to
// text content in the normal phase.
type stepLoader struct {
	name       string
	log        *[]string
	pitchWith  *Content
	pitchErr   error
	normalErr  error
	panicIn    Phase
	accepts    ContentKind
	sideEffect func(lc *Context)
}

func (l *stepLoader) Identifier() identifier.Identifier {
	return identifier.Identifier("test:" + l.name)
}

func (l *stepLoader) Pitch(_ context.Context, lc *Context) (PitchResult, error) {
	*l.log = append(*l.log, "pitch "+l.name)
	if l.panicIn == PhasePitch {
		panic("boom in " + l.name)
	}
	if l.pitchErr != nil {
		return PitchResult{}, l.pitchErr
	}
	if l.pitchWith != nil {
		return ShortCircuit(*l.pitchWith), nil
	}
	return Continue(), nil
}

func (l *stepLoader) Normal(_ context.Context, lc *Context, in Content) (Output, error) {
	*l.log = append(*l.log, "normal "+l.name)
	if l.panicIn == PhaseNormal {
		panic("boom in " + l.name)
	}
	if l.normalErr != nil {
		return Output{}, l.normalErr
	}
	if l.sideEffect != nil {
		l.sideEffect(lc)
	}
	text, err := in.AsText()
	if err != nil {
		return Output{}, err
	}
	return Output{Content: Text(text + "+" + l.name)}, nil
}

func (l *stepLoader) Accepts() ContentKind { return l.accepts }

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(data), 0o644))
	}
	return fs
}

func chainABC(log *[]string) (a, b, c *stepLoader) {
	return &stepLoader{name: "A", log: log}, &stepLoader{name: "B", log: log}, &stepLoader{name: "C", log: log}
}

func TestRunLoaders_PhaseOrdering(t *testing.T) {
	var log []string
	a, b, c := chainABC(&log)
	fs := memFs(t, map[string]string{"/src/x.js": "src"})

	res, err := RunLoaders(context.Background(), ParseResource("/src/x.js"), []Loader{a, b, c}, WithFs(fs))
	require.NoError(t, err)

	want := []string{"pitch C", "pitch B", "pitch A", "normal A", "normal B", "normal C"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Fatalf("call order (-want +got):\n%s", diff)
	}
	text, err := res.Content.AsText()
	require.NoError(t, err)
	assert.Equal(t, "src+A+B+C", text)
	assert.False(t, res.ShortCircuited())
	assert.Equal(t, []string{"/src/x.js"}, res.FileDependencies)
}

func TestRunLoaders_PitchShortCircuit(t *testing.T) {
	var log []string
	a, b, c := chainABC(&log)
	pitched := Bytes([]byte{0xff, 0x00, 'x'})
	b.pitchWith = &pitched

	// No file exists: a short circuit must not read the resource.
	res, err := RunLoaders(context.Background(), ParseResource("/missing.js"), []Loader{a, b, c}, WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)

	assert.Equal(t, []string{"pitch C", "pitch B"}, log)
	assert.True(t, res.ShortCircuited())
	assert.Equal(t, identifier.Identifier("test:B"), res.PitchedBy)
	assert.Equal(t, KindBytes, res.Content.Kind())
	assert.Equal(t, []byte{0xff, 0x00, 'x'}, res.Content.AsBytes())
	assert.Empty(t, res.FileDependencies)
}

func TestRunLoaders_NormalFailureStopsChain(t *testing.T) {
	var log []string
	a, b, c := chainABC(&log)
	cause := errors.New("syntax error")
	b.normalErr = cause
	fs := memFs(t, map[string]string{"/src/x.js": "src"})

	_, err := RunLoaders(context.Background(), ParseResource("/src/x.js?inline"), []Loader{a, b, c}, WithFs(fs))
	require.Error(t, err)

	var le *LoaderError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, identifier.Identifier("test:B"), le.Loader)
	assert.Equal(t, "/src/x.js?inline", le.Resource)
	assert.Equal(t, PhaseNormal, le.Phase)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, log, "normal C")
	assert.Contains(t, err.Error(), "test:B")
}

func TestRunLoaders_PitchFailure(t *testing.T) {
	var log []string
	a, b, c := chainABC(&log)
	c.pitchErr = errors.New("nope")

	_, err := RunLoaders(context.Background(), ParseResource("/x.js"), []Loader{a, b, c}, WithFs(afero.NewMemMapFs()))
	var le *LoaderError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, identifier.Identifier("test:C"), le.Loader)
	assert.Equal(t, PhasePitch, le.Phase)
	assert.Equal(t, []string{"pitch C"}, log)
}

func TestRunLoaders_PanicBecomesLoaderError(t *testing.T) {
	for _, phase := range []Phase{PhasePitch, PhaseNormal} {
		t.Run(phase.String(), func(t *testing.T) {
			var log []string
			a, b, c := chainABC(&log)
			b.panicIn = phase
			fs := memFs(t, map[string]string{"/x.js": "x"})

			_, err := RunLoaders(context.Background(), ParseResource("/x.js"), []Loader{a, b, c}, WithFs(fs))
			var le *LoaderError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, identifier.Identifier("test:B"), le.Loader)
			assert.Equal(t, phase, le.Phase)
			assert.ErrorIs(t, err, ErrLoaderPanic)
			assert.Contains(t, err.Error(), "boom in B")
		})
	}
}

func TestRunLoaders_ContentConversionFailure(t *testing.T) {
	var log []string
	a := &stepLoader{name: "A", log: &log, accepts: KindText}
	fs := memFs(t, map[string]string{"/img.png": "\xff\xfe\xfd"})

	_, err := RunLoaders(context.Background(), ParseResource("/img.png"), []Loader{a}, WithFs(fs))
	var le *LoaderError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, PhaseNormal, le.Phase)
	assert.ErrorIs(t, err, ErrInvalidText)
	assert.Equal(t, []string{"pitch A"}, log, "normal step must not run when its input cannot be converted")
}

func TestRunLoaders_MissingResource(t *testing.T) {
	var log []string
	a, _, _ := chainABC(&log)

	_, err := RunLoaders(context.Background(), ParseResource("/nope.js"), []Loader{a}, WithFs(afero.NewMemMapFs()))
	var le *LoaderError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, PhaseRead, le.Phase)
	assert.Empty(t, le.Loader)
	assert.Equal(t, []string{"pitch A"}, log)
}

func TestRunLoaders_Deterministic(t *testing.T) {
	fs := memFs(t, map[string]string{"/src/x.js": "src"})
	run := func() *Result {
		var log []string
		a, b, c := chainABC(&log)
		b.sideEffect = func(lc *Context) {
			lc.AddFileDependency("/src/z.css")
			lc.AddFileDependency("/src/a.css")
			lc.AddFileDependency("/src/z.css")
			lc.AddContextDependency("/src")
			lc.AddMissingDependency("/src/x.json")
			lc.EmitAsset("b.txt", []byte("b"))
			lc.EmitAsset("a.txt", []byte("a"))
			lc.EmitWarning("deprecated option %q", "legacy")
		}
		res, err := RunLoaders(context.Background(), ParseResource("/src/x.js"), []Loader{a, b, c}, WithFs(fs))
		require.NoError(t, err)
		return res
	}

	first, second := run(), run()
	if diff := cmp.Diff(first, second, cmp.AllowUnexported(Content{})); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"/src/a.css", "/src/x.js", "/src/z.css"}, first.FileDependencies)
	assert.Equal(t, []string{"/src"}, first.ContextDependencies)
	assert.Equal(t, []string{"/src/x.json"}, first.MissingDependencies)
	require.Len(t, first.Assets, 2)
	assert.Equal(t, "a.txt", first.Assets[0].Name)
	assert.Equal(t, identifier.Identifier("test:B"), first.Assets[0].Loader)
	require.Len(t, first.Warnings, 1)
	assert.Equal(t, `test:B: deprecated option "legacy"`, first.Warnings[0].String())
}

type reversePlugin struct{}

func (reversePlugin) Name() string { return "reverse" }

func (reversePlugin) ApplyLoaders(_ context.Context, _ ResourceData, chain []Loader) ([]Loader, error) {
	out := make([]Loader, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i])
	}
	return out, nil
}

type virtualPlugin struct {
	files map[string]string
}

func (virtualPlugin) Name() string { return "virtual" }

func (virtualPlugin) ApplyLoaders(_ context.Context, _ ResourceData, chain []Loader) ([]Loader, error) {
	return chain, nil
}

func (p virtualPlugin) ProcessResource(_ context.Context, r ResourceData, _ afero.Fs) (Content, bool, error) {
	s, ok := p.files[r.Path]
	if !ok {
		return Content{}, false, nil
	}
	return Text(s), true, nil
}

func TestRunLoaders_PluginsRewriteChainAndSupplyContent(t *testing.T) {
	var log []string
	a, b, _ := chainABC(&log)
	chain := []Loader{a, b}
	fs := memFs(t, map[string]string{"/disk.js": "disk"})
	plugins := WithPlugins(reversePlugin{}, virtualPlugin{files: map[string]string{"/virtual.js": "virt"}})

	res, err := RunLoaders(context.Background(), ParseResource("/virtual.js"), chain, WithFs(fs), plugins)
	require.NoError(t, err)
	text, _ := res.Content.AsText()
	assert.Equal(t, "virt+B+A", text)
	assert.Equal(t, []Loader{a, b}, chain, "caller's chain must not be modified")

	res, err = RunLoaders(context.Background(), ParseResource("/disk.js"), chain, WithFs(fs), plugins)
	require.NoError(t, err)
	text, _ = res.Content.AsText()
	assert.Equal(t, "disk+B+A", text)
}

func TestRunLoaders_CancelledContext(t *testing.T) {
	var log []string
	a, _, _ := chainABC(&log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunLoaders(ctx, ParseResource("/x.js"), []Loader{a}, WithFs(afero.NewMemMapFs()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

func TestRunLoaders_RecordsMetrics(t *testing.T) {
	m := observability.NewBuildMetrics()
	var log []string
	a, b, _ := chainABC(&log)
	b.normalErr = errors.New("bad")
	fs := memFs(t, map[string]string{"/x.js": "x"})

	_, err := RunLoaders(context.Background(), ParseResource("/x.js"), []Loader{a}, WithFs(fs), WithMetrics(m))
	require.NoError(t, err)
	_, err = RunLoaders(context.Background(), ParseResource("/x.js"), []Loader{a, b}, WithFs(fs), WithMetrics(m))
	require.Error(t, err)

	runs, err := testutil.GatherAndCount(m.Registry(), "rspack_loader_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, runs, "one series per outcome")

	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP rspack_loader_failures_total Total number of loader failures by loader and phase
# TYPE rspack_loader_failures_total counter
rspack_loader_failures_total{loader="test:B",phase="normal"} 1
`), "rspack_loader_failures_total")
	assert.NoError(t, err)
}

func TestParseResource(t *testing.T) {
	tests := []struct {
		in   string
		want ResourceData
	}{
		{"/a.js", ResourceData{Resource: "/a.js", Path: "/a.js"}},
		{"/a.js?raw", ResourceData{Resource: "/a.js?raw", Path: "/a.js", Query: "?raw"}},
		{"/a.js?x=1#top", ResourceData{Resource: "/a.js?x=1#top", Path: "/a.js", Query: "?x=1", Fragment: "#top"}},
		{"#private/a.js", ResourceData{Resource: "#private/a.js", Path: "#private/a.js"}},
		{"", ResourceData{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseResource(tt.in), tt.in)
	}
}

func TestContentConvert(t *testing.T) {
	c, err := Text("héllo").Convert(KindBytes)
	require.NoError(t, err)
	assert.Equal(t, KindBytes, c.Kind())
	back, err := c.Convert(KindText)
	require.NoError(t, err)
	s, _ := back.AsText()
	assert.Equal(t, "héllo", s)

	_, err = Bytes([]byte{0xc3}).Convert(KindText)
	assert.ErrorIs(t, err, ErrInvalidText)

	same, err := Bytes([]byte("x")).Convert(KindAny)
	require.NoError(t, err)
	assert.Equal(t, KindBytes, same.Kind())
	assert.True(t, Content{}.IsZero())
}

func TestCacheKey(t *testing.T) {
	var log []string
	a, b, _ := chainABC(&log)
	r := ParseResource("/a.js?raw")

	k1 := CacheKey(r, []Loader{a, b})
	assert.Len(t, k1, 64)
	assert.Equal(t, k1, CacheKey(r, []Loader{a, b}))
	assert.NotEqual(t, k1, CacheKey(r, []Loader{b, a}))
	assert.NotEqual(t, k1, CacheKey(ParseResource("/a.js"), []Loader{a, b}))
	assert.True(t, strings.HasPrefix(DisplayWithSuffix(a, "1"), "test:A|"))
}
