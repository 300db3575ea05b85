package frameworks

import (
	"fmt"
)

// Validate checks that every worker invocation can be built
func (l *LoRASetup) Validate() error {
	if l.PythonExecutable == "" {
		return fmt.Errorf("python executable is required")
	}
	if l.TrainScript == "" {
		return fmt.Errorf("train script is required")
	}
	if l.InferenceScript == "" {
		return fmt.Errorf("inference script is required")
	}
	if l.GPUs < 0 {
		return fmt.Errorf("gpu count must not be negative, got %d", l.GPUs)
	}
	return nil
}
