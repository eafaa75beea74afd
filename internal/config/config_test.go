package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/remoterun/internal/config"
	"github.com/slok/remoterun/internal/model"
)

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		yaml      string
		expConfig *config.Config
		expErr    bool
	}{
		"A valid configuration should load with defaults applied.": {
			yaml: `
hosts:
  - name: node1
    addr: 10.0.0.1
    user: ubuntu
    private_key_path: /home/u/.ssh/id_ed25519
  - name: node2
    addr: 10.0.0.2
    port: 2222
    user: root
`,
			expConfig: &config.Config{Hosts: []config.Host{
				{Name: "node1", Addr: "10.0.0.1", Port: 22, User: "ubuntu", PrivateKeyPath: "/home/u/.ssh/id_ed25519"},
				{Name: "node2", Addr: "10.0.0.2", Port: 2222, User: "root"},
			}},
		},

		"A host without name should fail.": {
			yaml: `
hosts:
  - addr: 10.0.0.1
`,
			expErr: true,
		},

		"A host without addr should fail.": {
			yaml: `
hosts:
  - name: node1
`,
			expErr: true,
		},

		"Duplicated host names should fail.": {
			yaml: `
hosts:
  - name: node1
    addr: 10.0.0.1
  - name: node1
    addr: 10.0.0.2
`,
			expErr: true,
		},

		"Broken YAML should fail.": {
			yaml:   `hosts: [`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			cfg, err := config.Load(strings.NewReader(test.yaml))

			if test.expErr {
				assert.Error(err)
			} else {
				require.NoError(t, err)
				assert.Equal(test.expConfig, cfg)
			}
		})
	}
}

func TestConfigHost(t *testing.T) {
	cfg, err := config.Load(strings.NewReader(`
hosts:
  - name: node1
    addr: 10.0.0.1
`))
	require.NoError(t, err)

	h, err := cfg.Host("node1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", h.Addr)

	_, err = cfg.Host("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
