// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are JSON serializable.
package envconfig

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/gomaze"

	env "github.com/samuelfneumann/goppg/environment"
	"github.com/samuelfneumann/goppg/environment/box2d/lunarlander"
	"github.com/samuelfneumann/goppg/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/goppg/environment/maze"
	"github.com/samuelfneumann/goppg/environment/wrappers"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	Cartpole    EnvName = "Cartpole"
	Maze        EnvName = "Maze"
	LunarLander EnvName = "LunarLander"
)

// TaskName stores the tasks that can be configured with this package.
// Note that not all tasks can be used with all environments. The tasks
// that can be used with each environment are as follows:
//
//	Environment			Task
//	Cartpole			Balance
//	Maze				Solve
//	LunarLander			Land
type TaskName string

// Tasks available for configuration
const (
	Balance TaskName = "Balance"
	Solve   TaskName = "Solve"
	Land    TaskName = "Land"
)

// MazeGenerator names a GoMaze algorithm for carving maze walls
type MazeGenerator string

// Maze generators available for configuration
const (
	AldousBroder MazeGenerator = "AldousBroder"
	Backtracking MazeGenerator = "Backtracking"
	BinaryTree   MazeGenerator = "BinaryTree"
	Iterative    MazeGenerator = "Iterative"
	Wilson       MazeGenerator = "Wilson"
)

// Config implements a specific configuration of a specific environment
// and specific task, run as NumEnvs parallel copies. Rows, Cols, and
// Generator only apply to the Maze environment, whose copies all share
// one layout.
type Config struct {
	Environment   EnvName
	Task          TaskName
	EpisodeCutoff uint
	Discount      float64
	NumEnvs       int

	Rows      int           `json:",omitempty"`
	Cols      int           `json:",omitempty"`
	Generator MazeGenerator `json:",omitempty"`
}

// Create returns the vectorised environment described by the Config.
// Copy i of the environment is seeded with seed + i.
func (c Config) Create(seed uint64) (env.Vectorized, error) {
	if c.NumEnvs < 1 {
		return nil, errors.Errorf("create: NumEnvs must be positive, "+
			"have(%d)", c.NumEnvs)
	}

	envs := make([]env.Environment, c.NumEnvs)
	for i := range envs {
		e, err := c.create(seed, i)
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		envs[i] = e
	}

	vec, err := wrappers.NewVector(envs...)
	if err != nil {
		return nil, errors.Wrap(err, "create")
	}
	return vec, nil
}

// create returns copy i of the environment
func (c Config) create(seed uint64, i int) (env.Environment, error) {
	copySeed := seed + uint64(i)
	switch c.Environment {
	case Cartpole:
		return CreateCartpole(c.Task, int(c.EpisodeCutoff), copySeed,
			c.Discount)

	case Maze:
		return CreateMaze(c.Task, int(c.EpisodeCutoff), c.Rows, c.Cols,
			c.Generator, seed, c.Discount)

	case LunarLander:
		return CreateLunarLander(c.Task, int(c.EpisodeCutoff), copySeed,
			c.Discount)
	}
	return nil, errors.Errorf("no such environment %v", c.Environment)
}

// CreateCartpole is a factory for creating the Cartpole environment
// with default physical parameters and default task parameters.
func CreateCartpole(taskName TaskName, cutoff int, seed uint64,
	discount float64) (env.Environment, error) {
	switch taskName {
	case Balance:
		task := cartpole.NewDefaultBalance(cutoff, seed)
		e, _ := cartpole.New(task, discount)
		return e, nil
	}
	return nil, errors.Errorf("createCartpole: Cartpole environment has "+
		"no task %v", taskName)
}

// CreateMaze is a factory for creating a rows ⨉ cols Maze whose walls
// are carved by generator, seeded with seed
func CreateMaze(taskName TaskName, cutoff, rows, cols int,
	generator MazeGenerator, seed uint64, discount float64) (env.Environment,
	error) {
	if taskName != Solve {
		return nil, errors.Errorf("createMaze: Maze environment has no "+
			"task %v", taskName)
	}

	var init gomaze.Initer
	s := int64(seed)
	switch generator {
	case AldousBroder:
		init = gomaze.NewAldousBroder(s)
	case Backtracking, "":
		init = gomaze.NewBacktracking(s)
	case BinaryTree:
		init = gomaze.NewBinaryTree(s)
	case Iterative:
		init = gomaze.NewIterative(s)
	case Wilson:
		init = gomaze.NewWilson(s)
	default:
		return nil, errors.Errorf("createMaze: no such generator %v",
			generator)
	}

	e, _, err := maze.New(maze.NewSolve(cutoff), rows, cols, init, discount)
	if err != nil {
		return nil, errors.Wrap(err, "createMaze")
	}
	return e, nil
}

// CreateLunarLander is a factory for creating the LunarLander
// environment with the default starting state distribution
func CreateLunarLander(taskName TaskName, cutoff int, seed uint64,
	discount float64) (env.Environment, error) {
	switch taskName {
	case Land:
		e, _ := lunarlander.New(lunarlander.NewDefaultLand(cutoff, seed),
			discount, seed)
		return e, nil
	}
	return nil, errors.Errorf("createLunarLander: LunarLander environment "+
		"has no task %v", taskName)
}
