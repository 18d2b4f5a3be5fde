package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	owned := []string{"-backend", "-live"}
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-backend", "bucket", "-c", "shelf.json"},
			allowed: owned,
			want:    []string{"-backend", "bucket"},
		},
		{
			name:    "equals form",
			args:    []string{"-backend=docstore", "-c", "shelf.json"},
			allowed: owned,
			want:    []string{"-backend=docstore"},
		},
		{
			name:    "boolean flag followed by another flag",
			args:    []string{"-live", "-backend", "relational"},
			allowed: owned,
			want:    []string{"-live", "-backend", "relational"},
		},
		{
			name:    "flag without value at end",
			args:    []string{"-backend"},
			allowed: owned,
			want:    []string{"-backend"},
		},
		{
			name:    "unknown flags and positionals dropped",
			args:    []string{"-x", "1", "--y=2", "list"},
			allowed: owned,
			want:    []string{},
		},
		{
			name:    "equals value that looks like a flag",
			args:    []string{"-backend=-odd"},
			allowed: owned,
			want:    []string{"-backend=-odd"},
		},
		{
			name:    "repeats kept in order",
			args:    []string{"-backend", "bucket", "-backend", "docstore"},
			allowed: owned,
			want:    []string{"-backend", "bucket", "-backend", "docstore"},
		},
		{
			name:    "nil args",
			args:    nil,
			allowed: owned,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "shelf.json", ConfigPath([]string{"-backend", "bucket", "--config=shelf.json"}))
	assert.Equal(t, "a.json", ConfigPath([]string{"-c", "a.json", "-live"}))
	assert.Equal(t, "b.json", ConfigPath([]string{"-c", "a.json", "-config", "b.json"}))
	assert.Empty(t, ConfigPath([]string{"-backend", "docstore"}))
	assert.Empty(t, ConfigPath(nil))
}

func TestJsonConfigFlags_ReadsOSArgs(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"discshelf", "-c", "/etc/discshelf.json"}
	assert.Equal(t, "/etc/discshelf.json", JsonConfigFlags())
}
