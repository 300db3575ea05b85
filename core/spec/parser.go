package spec

import (
	"fmt"
	"os"
	"strings"

	"llama-lora/core/models"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// AppSpec represents the YAML runtime declaration
type AppSpec struct {
	App AppSpecApp `yaml:"app"`
}

// AppSpecApp represents the app section of the declaration
type AppSpecApp struct {
	Name    string          `yaml:"name"`
	Runtime AppSpecRuntime  `yaml:"runtime"`
	Volumes []AppSpecVolume `yaml:"volumes"`
}

// AppSpecRuntime represents the compute shape
type AppSpecRuntime struct {
	CPU    int          `yaml:"cpu"`
	Memory string       `yaml:"memory"` // e.g., "32Gi"
	GPU    string       `yaml:"gpu"`    // e.g., "A10G"
	Image  AppSpecImage `yaml:"image"`
}

// AppSpecImage represents the container image
type AppSpecImage struct {
	PythonVersion  string `yaml:"python_version"`
	PythonPackages string `yaml:"python_packages"`
}

// AppSpecVolume represents a mounted volume
type AppSpecVolume struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// DefaultApp returns the built-in llama-lora declaration
func DefaultApp() models.App {
	return models.App{
		Name: "llama-lora",
		Runtime: models.RuntimeSpec{
			CPU:    4,
			Memory: "32Gi",
			GPU:    "A10G",
			Image: models.ImageSpec{
				PythonVersion:  "python3.10",
				PythonPackages: "requirements.txt",
			},
		},
		// Fine-tuned models and cached model weights
		Volumes: []models.VolumeMount{
			{Name: models.VolumeCheckpoints, Path: "./checkpoints"},
			{Name: models.VolumePretrainedModels, Path: "./pretrained-models"},
		},
	}
}

// LoadApp reads a declaration from path, or returns DefaultApp when path is empty
func LoadApp(path string) (models.App, error) {
	if path == "" {
		return DefaultApp(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.App{}, fmt.Errorf("failed to read app spec %s: %w", path, err)
	}

	return ParseApp(string(data))
}

// ParseApp parses a YAML runtime declaration into an App model
func ParseApp(specYAML string) (models.App, error) {
	var spec AppSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return models.App{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	app := models.App{
		Name: spec.App.Name,
		Runtime: models.RuntimeSpec{
			CPU:    spec.App.Runtime.CPU,
			Memory: spec.App.Runtime.Memory,
			GPU:    spec.App.Runtime.GPU,
			Image: models.ImageSpec{
				PythonVersion:  spec.App.Runtime.Image.PythonVersion,
				PythonPackages: spec.App.Runtime.Image.PythonPackages,
			},
		},
	}
	for _, v := range spec.App.Volumes {
		app.Volumes = append(app.Volumes, models.VolumeMount{Name: v.Name, Path: v.Path})
	}

	if err := Validate(app); err != nil {
		return models.App{}, err
	}

	return app, nil
}

// Validate checks that a declaration can be provisioned
func Validate(app models.App) error {
	if app.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if app.Runtime.CPU <= 0 {
		return fmt.Errorf("runtime cpu must be positive, got %d", app.Runtime.CPU)
	}
	if _, err := MemoryBytes(app.Runtime.Memory); err != nil {
		return err
	}
	if strings.TrimSpace(app.Runtime.GPU) == "" {
		return fmt.Errorf("runtime gpu is required")
	}

	seen := make(map[string]bool, len(app.Volumes))
	for _, v := range app.Volumes {
		if v.Name == "" || v.Path == "" {
			return fmt.Errorf("volume needs both name and path: %+v", v)
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate volume %q", v.Name)
		}
		seen[v.Name] = true
	}
	for _, required := range []string{models.VolumeCheckpoints, models.VolumePretrainedModels} {
		if !seen[required] {
			return fmt.Errorf("volume %q is required", required)
		}
	}

	return nil
}

// MemoryBytes parses a memory quantity such as "32Gi"
func MemoryBytes(quantity string) (int64, error) {
	q, err := resource.ParseQuantity(quantity)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", quantity, err)
	}
	if q.Sign() <= 0 {
		return 0, fmt.Errorf("memory quantity must be positive, got %q", quantity)
	}
	return q.Value(), nil
}
