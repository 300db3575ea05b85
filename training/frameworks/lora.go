package frameworks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"llama-lora/core/models"
)

// DefaultPromptTemplate is the prompt formatter the worker applies when a
// checkpoint does not name its own
const DefaultPromptTemplate = "alpaca"

// LoRASetup builds launch configurations for the Python LoRA worker scripts
type LoRASetup struct {
	PythonExecutable string
	TrainScript      string
	InferenceScript  string
	PretrainedDir    string // cached base-model weights
	GPUs             int
}

// LaunchConfig is a fully resolved worker invocation
type LaunchConfig struct {
	Executable  string
	Args        []string
	Environment map[string]string
}

// TrainingLaunch returns the invocation of the external train routine
func (l *LoRASetup) TrainingLaunch(baseModel string, valSetSize int, dataPath, outputDir string) *LaunchConfig {
	return &LaunchConfig{
		Executable: l.PythonExecutable,
		Args: []string{
			l.TrainScript,
			"--base_model", baseModel,
			"--val_set_size", strconv.Itoa(valSetSize),
			"--data_path", dataPath,
			"--output_dir", outputDir,
		},
		Environment: l.getEnvironment(),
	}
}

// InferenceLaunch returns the invocation of the external generation routine.
// The prompt itself is written to the worker's stdin.
func (l *LoRASetup) InferenceLaunch(bundle *models.ModelBundle) *LaunchConfig {
	return &LaunchConfig{
		Executable: l.PythonExecutable,
		Args: []string{
			l.InferenceScript,
			"--checkpoint", bundle.Model,
			"--tokenizer", bundle.Tokenizer,
			"--prompt_template", bundle.Prompter,
		},
		Environment: l.getEnvironment(),
	}
}

// getEnvironment returns the environment shared by every worker process
func (l *LoRASetup) getEnvironment() map[string]string {
	env := map[string]string{
		"PYTHONUNBUFFERED":       "1",
		"TOKENIZERS_PARALLELISM": "false",
	}
	if l.PretrainedDir != "" {
		env["HF_HOME"] = l.PretrainedDir
		env["TRANSFORMERS_CACHE"] = l.PretrainedDir
	}
	if l.GPUs > 0 {
		devices := make([]string, l.GPUs)
		for i := range devices {
			devices[i] = strconv.Itoa(i)
		}
		env["CUDA_VISIBLE_DEVICES"] = strings.Join(devices, ",")
	}
	return env
}

// Env merges the launch environment over base (typically os.Environ())
func (c *LaunchConfig) Env(base []string) []string {
	out := make([]string, 0, len(base)+len(c.Environment))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := c.Environment[key]; !overridden {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+c.Environment[k])
	}
	return out
}

// String renders the invocation as a shell line for logs
func (c *LaunchConfig) String() string {
	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s ", k, c.Environment[k])
	}
	b.WriteString(c.Executable)
	for _, a := range c.Args {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(a))
	}
	return b.String()
}
