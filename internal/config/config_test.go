package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{Entry: []string{"./src/index.js"}}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("minimal config should have no warnings, got %v", warnings)
	}
}

func TestValidate_NoEntry(t *testing.T) {
	warnings := (&Config{}).Validate()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "entry") {
		t.Errorf("expected a single entry warning, got %v", warnings)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"module_ids", Config{Optimization: OptimizationConfig{ModuleIDs: "hashed"}}, "module_ids"},
		{"parallelism", Config{Parallelism: -2}, "parallelism"},
		{"redis", Config{Cache: CacheConfig{Type: "redis"}}, "cache.redis.addr"},
		{"cache type", Config{Cache: CacheConfig{Type: "disk"}}, "cache.type"},
		{"sample_rate", Config{Tracing: TracingConfig{SampleRate: 1.5}}, "sample_rate"},
		{"rule without loaders", Config{Module: ModuleConfig{Rules: []RuleConfig{{Test: `\.js$`}}}}, "no loaders"},
		{"rule matching everything", Config{Module: ModuleConfig{Rules: []RuleConfig{{Use: []UseConfig{{Loader: "x"}}}}}}, "every resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Entry = []string{"./a.js"}
			found := false
			for _, w := range tt.cfg.Validate() {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected warning containing %q", tt.want)
			}
		})
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rspack.yaml")
	content := `
entry:
  - ./src/index.js
module:
  rules:
    - test: '\.ya?ml$'
      use:
        - loader: builtin:yaml
    - test: '\.js$'
      include: ['src/**']
      use:
        - loader: builtin:banner
          options:
            banner: "/* built */"
cache:
  type: redis
  redis:
    addr: localhost:6379
    ttl: 1h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Context != dir {
		t.Errorf("context = %q, want %q", cfg.Context, dir)
	}
	if cfg.Output.Path != filepath.Join(dir, "dist") {
		t.Errorf("output.path = %q", cfg.Output.Path)
	}
	if cfg.Optimization.ModuleIDs != "named" {
		t.Errorf("module_ids default = %q", cfg.Optimization.ModuleIDs)
	}
	if got := cfg.Resolve.Extensions; len(got) != 2 || got[0] != ".js" {
		t.Errorf("resolve.extensions = %v", got)
	}
	if cfg.Cache.Redis.TTL != time.Hour {
		t.Errorf("redis ttl = %v", cfg.Cache.Redis.TTL)
	}
	if len(cfg.Module.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(cfg.Module.Rules))
	}
	use := cfg.Module.Rules[1].Use[0]
	if use.Loader != "builtin:banner" || use.Options["banner"] != "/* built */" {
		t.Errorf("unexpected use entry %+v", use)
	}
}

func TestLoadFs_MemMapFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "entry: [./src/index.js]\noutput:\n  path: build\n"
	if err := afero.WriteFile(fs, "/proj/rspack.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFs(fs, "/proj/rspack.yaml")
	if err != nil {
		t.Fatalf("LoadFs: %v", err)
	}
	if cfg.Context != "/proj" || cfg.Output.Path != "/proj/build" {
		t.Errorf("context = %q, output.path = %q", cfg.Context, cfg.Output.Path)
	}
	if len(cfg.Entry) != 1 || cfg.Entry[0] != "./src/index.js" {
		t.Errorf("entry = %v", cfg.Entry)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rspack.toml")
	if err := os.WriteFile(path, []byte("entry = [\"./a.js\"]\nfail_fast = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RSPACK_FAIL_FAST", "true")
	t.Setenv("RSPACK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.FailFast {
		t.Error("expected RSPACK_FAIL_FAST to override the file")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRules(t *testing.T) {
	cfg := &Config{Module: ModuleConfig{Rules: []RuleConfig{
		{Test: `\.js$`, Include: []string{"src/**"}, Exclude: []string{"src/vendor/**"}, Use: []UseConfig{{Loader: "a"}}},
		{Test: `\.js$`, ResourceQuery: `raw`, Use: []UseConfig{{Loader: "raw"}}},
		{Test: `\.json$`, Use: []UseConfig{{Loader: "json"}}},
	}}}
	rules, err := cfg.CompileRules()
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}

	loaders := func(path, query string) []string {
		var names []string
		for _, u := range LoadersFor(rules, "/p", path, query) {
			names = append(names, u.Loader)
		}
		return strings.Split(strings.Join(names, ","), ",")
	}

	tests := []struct {
		path, query, want string
	}{
		{"/p/src/index.js", "", "a"},
		{"/p/src/deep/x.js", "?raw", "a,raw"},
		{"/p/src/vendor/lib.js", "", ""},
		{"/p/lib/x.js", "?raw", "raw"},
		{"/p/data.json", "", "json"},
	}
	for _, tt := range tests {
		if got := strings.Join(loaders(tt.path, tt.query), ","); got != tt.want {
			t.Errorf("%s%s: loaders = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}

func TestRules_DottedDirectoryIsInsideContext(t *testing.T) {
	cfg := &Config{Module: ModuleConfig{Rules: []RuleConfig{
		{Test: `\.js$`, Include: []string{"..cache/**"}, Use: []UseConfig{{Loader: "a"}}},
	}}}
	rules, err := cfg.CompileRules()
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	if got := LoadersFor(rules, "/p", "/p/..cache/x.js", ""); len(got) != 1 {
		t.Errorf("expected the include glob to match, got %v", got)
	}
	if got := LoadersFor(rules, "/p/src", "/p/..cache/x.js", ""); len(got) != 0 {
		t.Errorf("expected no match outside the context, got %v", got)
	}
}

func TestCompileRules_Invalid(t *testing.T) {
	bad := []RuleConfig{
		{Test: "(", Use: []UseConfig{{Loader: "a"}}},
		{Include: []string{"src/[a"}, Use: []UseConfig{{Loader: "a"}}},
		{Test: "x", Use: []UseConfig{{}}},
	}
	for i, r := range bad {
		cfg := &Config{Module: ModuleConfig{Rules: []RuleConfig{r}}}
		if _, err := cfg.CompileRules(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
