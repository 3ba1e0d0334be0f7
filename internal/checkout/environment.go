package checkout

import (
	"context"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
)

// Environment is the part of the runner environment a checkout depends on
type Environment struct {
	Workspace  string `env:"CLOUDBEES_WORKSPACE,required"`
	EventPath  string `env:"CLOUDBEES_EVENT_PATH,required"`
	Outputs    string `env:"CLOUDBEES_OUTPUTS"`
	Home       string `env:"HOME,required"`
	RunnerTemp string `env:"RUNNER_TEMP"`
}

// LoadEnvironment reads the Environment from the process environment
func LoadEnvironment(ctx context.Context) (*Environment, error) {
	var env Environment
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("loading runner environment: %w", err)
	}
	if env.RunnerTemp == "" {
		env.RunnerTemp = os.TempDir()
	}
	return &env, nil
}
