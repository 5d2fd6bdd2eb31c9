package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/app/cliflag"
)

type testHTTP struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type testOptions struct {
	HTTP      *testHTTP `mapstructure:"http"`
	Token     string    `mapstructure:"token"`
	completed bool
	invalid   bool
}

func newTestOptions() *testOptions {
	return &testOptions{HTTP: &testHTTP{Addr: ":8080", Timeout: time.Second}}
}

func (o *testOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("http")
	fs.StringVar(&o.HTTP.Addr, "http.addr", o.HTTP.Addr, "listen address")
	fs.DurationVar(&o.HTTP.Timeout, "http.timeout", o.HTTP.Timeout, "timeout")
	fss.FlagSet("misc").StringVar(&o.Token, "token", o.Token, "token")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid {
		return errors.New("invalid options")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestAppConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "docqa-test.yaml", "http:\n  addr: \":9000\"\n  timeout: 5s\ntoken: ${DOCQA_TEST_TOKEN}\n")
	t.Setenv("DOCQA_TEST_TOKEN", "from-env")

	opts := newTestOptions()
	ran := false
	a := NewApp(
		WithName("docqa-test"),
		WithOptions(opts),
		WithNoVersion(),
		WithEnvFiles(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)
	a.Command().SetArgs([]string{"--config", cfg, "--http.timeout", "7s"})
	require.NoError(t, a.Command().Execute())

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, ":9000", opts.HTTP.Addr, "配置文件覆盖默认值")
	assert.Equal(t, 7*time.Second, opts.HTTP.Timeout, "显式 flag 优先")
	assert.Equal(t, "from-env", opts.Token, "展开环境变量")
}

func TestAppDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "DOCQA_DOTENV_HTTP_ADDR=:7070\n")
	t.Cleanup(func() { _ = os.Unsetenv("DOCQA_DOTENV_HTTP_ADDR") })

	opts := newTestOptions()
	a := NewApp(WithName("docqa-dotenv"), WithOptions(opts), WithNoVersion(), WithEnvFiles(env))
	a.Command().SetArgs([]string{})
	require.NoError(t, a.Command().Execute())
	assert.Equal(t, ":7070", opts.HTTP.Addr)
}

func TestAppValidateError(t *testing.T) {
	opts := newTestOptions()
	opts.invalid = true
	a := NewApp(WithName("docqa-invalid"), WithOptions(opts), WithNoVersion(), WithNoConfig(), WithSilence())
	a.Command().SetArgs([]string{})
	assert.EqualError(t, a.Command().Execute(), "invalid options")
}
