package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/remoterun/internal/config"
)

func TestParseHostSpec(t *testing.T) {
	tests := map[string]struct {
		spec    string
		expHost config.Host
		expErr  bool
	}{
		"A bare address should parse with defaults": {
			spec:    "10.0.0.1",
			expHost: config.Host{Name: "10.0.0.1", Addr: "10.0.0.1", Port: 22},
		},
		"user@addr should parse": {
			spec:    "ubuntu@10.0.0.1",
			expHost: config.Host{Name: "10.0.0.1", Addr: "10.0.0.1", Port: 22, User: "ubuntu"},
		},
		"user@addr:port should parse": {
			spec:    "ubuntu@10.0.0.1:2222",
			expHost: config.Host{Name: "10.0.0.1", Addr: "10.0.0.1", Port: 2222, User: "ubuntu"},
		},
		"A hostname should parse": {
			spec:    "root@node1.example.com",
			expHost: config.Host{Name: "node1.example.com", Addr: "node1.example.com", Port: 22, User: "root"},
		},
		"An empty address should fail": {
			spec:   "user@",
			expErr: true,
		},
		"A bad port should fail": {
			spec:   "user@addr:notaport",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h, err := parseHostSpec(test.spec)

			if test.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expHost, h)
		})
	}
}

func TestApplyHostDefaults(t *testing.T) {
	h := applyHostDefaults(config.Host{Name: "node1", Addr: "10.0.0.1"}, "root", "/keys/id")
	assert.Equal(t, "root", h.User)
	assert.Equal(t, "/keys/id", h.PrivateKeyPath)

	h = applyHostDefaults(config.Host{Name: "node1", Addr: "10.0.0.1", User: "u", PrivateKeyPath: "/k"}, "root", "/keys/id")
	assert.Equal(t, "u", h.User)
	assert.Equal(t, "/k", h.PrivateKeyPath)
}
