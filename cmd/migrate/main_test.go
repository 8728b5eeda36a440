package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

type fakeMigrator struct {
	upErr   error
	steps   int
	forced  int
	version uint
	verErr  error
}

func (f *fakeMigrator) Up() error                    { return f.upErr }
func (f *fakeMigrator) Steps(n int) error            { f.steps = n; return nil }
func (f *fakeMigrator) Force(v int) error            { f.forced = v; return nil }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.verErr }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: nil, want: command{name: "up"}},
		{args: []string{"up"}, want: command{name: "up"}},
		{args: []string{"down"}, want: command{name: "down", n: 1}},
		{args: []string{"down", "2"}, want: command{name: "down", n: 2}},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"force", "3"}, want: command{name: "force", n: 3}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"version"}, want: command{name: "version"}},
		{args: []string{"drop"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		if tt.wantErr {
			assert.Error(t, err, tt.args)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRunCommands(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Output: &buf})

	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, command{name: "up"}.run(m, logger))

	require.NoError(t, command{name: "down", n: 2}.run(m, logger))
	assert.Equal(t, -2, m.steps)

	require.NoError(t, command{name: "force", n: 3}.run(m, logger))
	assert.Equal(t, 3, m.forced)

	m.verErr = migrate.ErrNilVersion
	require.NoError(t, command{name: "version"}.run(m, logger))
	assert.Contains(t, buf.String(), "no migrations applied")

	m.upErr = errors.New("dirty database")
	require.Error(t, command{name: "up"}.run(m, logger))
}
