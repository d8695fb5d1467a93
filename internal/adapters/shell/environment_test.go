package shell_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/ship/internal/adapters/shell"
)

func TestResolveEnvironment(t *testing.T) {
	env := shell.ResolveEnvironment(
		[]string{"PATH=/usr/bin", "HOME=/home/ci", "KEEP=1"},
		[]string{"/run/shims", "/opt/python/bin"},
		map[string]string{"HOME": "/tmp/home", "PYTHONHASHSEED": "0"},
	)

	assert.Equal(t, []string{
		"HOME=/tmp/home",
		"KEEP=1",
		"PATH=/run/shims:/opt/python/bin:/usr/bin",
		"PYTHONHASHSEED=0",
	}, env)
}

func TestResolveEnvironment_NoSystemPath(t *testing.T) {
	env := shell.ResolveEnvironment(nil, []string{"/run/shims"}, nil)
	assert.Equal(t, []string{"PATH=/run/shims"}, env)
}
