package checkpointer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// state is a Serializable with unexported fields
type state struct {
	coeff    float64
	rollouts int
	fail     bool
}

func (s *state) GobEncode() ([]byte, error) {
	if s.fail {
		return nil, errors.New("encode failure")
	}
	return Encode(s.coeff, s.rollouts)
}

func (s *state) GobDecode(data []byte) error {
	return Decode(data, &s.coeff, &s.rollouts)
}

func TestFileOverwrites(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "agent.bin")
	s := &state{coeff: 0.01, rollouts: 1}
	c := NewFile(s, Fixed(filename))

	require.NoError(t, c.Checkpoint())
	s.coeff, s.rollouts = 0.005, 2
	require.NoError(t, c.Checkpoint())

	entries, err := os.ReadDir(filepath.Dir(filename))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	var loaded state
	require.NoError(t, Load(filename, &loaded))
	assert.Equal(t, 0.005, loaded.coeff)
	assert.Equal(t, 2, loaded.rollouts)
}

func TestFileEnumerated(t *testing.T) {
	dir := t.TempDir()
	c := NewFile(&state{}, FilenameEnumerator(0, filepath.Join(dir, "agent"),
		".bin"))

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Checkpoint())
	}
	for _, name := range []string{"agent1.bin", "agent2.bin", "agent3.bin"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestCheckpointErrorKeepsPrevious(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "agent.bin")
	s := &state{coeff: 1}
	c := NewFile(s, Fixed(filename))
	require.NoError(t, c.Checkpoint())

	s.fail = true
	s.coeff = 2
	assert.Error(t, c.Checkpoint())

	var loaded state
	require.NoError(t, Load(filename, &loaded))
	assert.Equal(t, 1.0, loaded.coeff)
}

func TestLoadMissing(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "missing.bin"), &state{})
	assert.Error(t, err)
}

// counter counts checkpoints
type counter int

func (c *counter) Checkpoint() error {
	*c++
	return nil
}

func TestNStep(t *testing.T) {
	var c counter
	n := NewNStep(3, &c)
	for i := 0; i < 7; i++ {
		require.NoError(t, n.Checkpoint())
	}
	assert.Equal(t, counter(2), c)

	c = 0
	n = NewNStep(0, &c)
	require.NoError(t, n.Checkpoint())
	assert.Equal(t, counter(1), c)
}
