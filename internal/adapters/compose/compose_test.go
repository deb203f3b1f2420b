package compose

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse/internal/adapters/process"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

const sampleCompose = `# blog stack
version: "3.9"
services:
  web:
    image: nginx:1.27
    ports:
      - "8080:80"
    labels:
      - traefik.enable=true
  db:
    image: postgres:16
    environment:
      POSTGRES_DB: blog
volumes:
  data: {}
`

type composeDoc struct {
	Version  string `yaml:"version"`
	Services map[string]struct {
		Image       string            `yaml:"image"`
		Ports       []string          `yaml:"ports"`
		Labels      []string          `yaml:"labels"`
		Environment map[string]string `yaml:"environment"`
	} `yaml:"services"`
	Volumes map[string]any `yaml:"volumes"`
}

func decode(t *testing.T, data []byte) composeDoc {
	t.Helper()
	var doc composeDoc
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func TestAppendLabel_PreservesUntouchedContent(t *testing.T) {
	out, err := AppendLabel([]byte(sampleCompose), "web", "|||blog|||")
	require.NoError(t, err)

	doc := decode(t, out)
	assert.Equal(t, "3.9", doc.Version)
	assert.Equal(t, []string{"traefik.enable=true", "|||blog|||"}, doc.Services["web"].Labels)
	assert.Equal(t, []string{"8080:80"}, doc.Services["web"].Ports)
	assert.Equal(t, "blog", doc.Services["db"].Environment["POSTGRES_DB"])
	assert.Empty(t, doc.Services["db"].Labels)
	assert.Contains(t, doc.Volumes, "data")
	assert.Contains(t, string(out), "# blog stack")
}

func TestAppendLabel_CreatesLabels(t *testing.T) {
	out, err := AppendLabel([]byte(sampleCompose), "db", "|||blog|||")
	require.NoError(t, err)
	assert.Equal(t, []string{"|||blog|||"}, decode(t, out).Services["db"].Labels)

	out, err = AppendLabel([]byte("services:\n  web:\n    image: x\n    labels: []\n"), "web", "|||a|||")
	require.NoError(t, err)
	assert.Equal(t, []string{"|||a|||"}, decode(t, out).Services["web"].Labels)
}

func TestAppendLabel_TwiceDuplicates(t *testing.T) {
	once, err := AppendLabel([]byte(sampleCompose), "web", "|||blog|||")
	require.NoError(t, err)
	twice, err := AppendLabel(once, "web", "|||blog|||")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"traefik.enable=true", "|||blog|||", "|||blog|||"},
		decode(t, twice).Services["web"].Labels,
	)
}

func TestAppendLabel_AliasedUnitStaysLocal(t *testing.T) {
	const doc = `x-base: &base
  image: nginx:1.27
  labels:
    - common
services:
  web: *base
  api: *base
`
	out, err := AppendLabel([]byte(doc), "web", "|||blog|||")
	require.NoError(t, err)

	got := decode(t, out)
	assert.Equal(t, []string{"common", "|||blog|||"}, got.Services["web"].Labels)
	assert.Equal(t, "nginx:1.27", got.Services["web"].Image)
	assert.Equal(t, []string{"common"}, got.Services["api"].Labels)
}

func TestAppendLabel_AliasedLabelsStayLocal(t *testing.T) {
	const doc = `x-labels: &labels [common]
services:
  web:
    image: x
    labels: *labels
  api:
    image: y
    labels: *labels
`
	out, err := AppendLabel([]byte(doc), "web", "|||blog|||")
	require.NoError(t, err)

	got := decode(t, out)
	assert.Equal(t, []string{"common", "|||blog|||"}, got.Services["web"].Labels)
	assert.Equal(t, []string{"common"}, got.Services["api"].Labels)
}

func TestAppendLabel_MissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantKey string
	}{
		{"no services", "version: '3'\n", "services"},
		{"empty document", "", "services"},
		{"unit missing", "services:\n  db:\n    image: x\n", "web"},
		{"services not a map", "services: [web]\n", "web"},
		{"unit not a map", "services:\n  web: nginx\n", "web (as map)"},
		{"labels as map", "services:\n  web:\n    labels:\n      a: b\n", "web labels (as sequence)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AppendLabel([]byte(tt.doc), "web", "|||x|||")
			var de *domain.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, domain.ErrKey, de.Kind)
			assert.Equal(t, tt.wantKey, de.Key)
		})
	}
}

func TestAppendLabel_InvalidYAML(t *testing.T) {
	_, err := AppendLabel([]byte("services: [\n"), "web", "x")
	assert.Equal(t, domain.ErrYAML, domain.KindOf(err))
}

func TestTagger_RewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker-compose.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCompose), 0o640))

	tagger := NewTagger()
	require.NoError(t, tagger.Tag(path, "web", "|||blog|||"))
	require.NoError(t, tagger.Tag(path, "web", "|||blog|||"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decode(t, data).Services["web"].Labels, 3)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestTagger_MissingFile(t *testing.T) {
	err := NewTagger().Tag(filepath.Join(t.TempDir(), "nope.yaml"), "web", "x")
	assert.Equal(t, domain.ErrCommand, domain.KindOf(err))
}

func TestController(t *testing.T) {
	runner := &process.MockRunner{
		RunInDirFunc: func(ctx context.Context, dir string, name string, args ...string) (ports.Result, error) {
			if args[1] == "stop" {
				return ports.Result{ExitCode: 1, Stderr: "no such project"}, nil
			}
			return ports.Result{}, nil
		},
	}
	c := NewController(runner, nil)

	require.NoError(t, c.Up(context.Background(), "/live/blog"))
	err := c.Stop(context.Background(), "/live/blog")
	assert.Equal(t, domain.ErrStop, domain.KindOf(err))

	assert.Equal(t, []string{"docker compose up -d", "docker compose stop"}, runner.Commands())
	assert.Equal(t, "/live/blog", runner.Calls[0].Dir)
}

func TestController_UpFails(t *testing.T) {
	runner := &process.MockRunner{
		RunInDirFunc: func(ctx context.Context, dir string, name string, args ...string) (ports.Result, error) {
			return ports.Result{ExitCode: 17}, nil
		},
	}
	err := NewController(runner, nil).Up(context.Background(), "/live/blog")
	assert.Equal(t, domain.ErrStart, domain.KindOf(err))
}
