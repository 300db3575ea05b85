package models

import "time"

// App is the static deployment declaration: compute shape plus mounted volumes
type App struct {
	Name    string        `json:"name"`
	Runtime RuntimeSpec   `json:"runtime"`
	Volumes []VolumeMount `json:"volumes"`
}

// RuntimeSpec describes the compute shape the platform provisions
type RuntimeSpec struct {
	CPU    int       `json:"cpu"`
	Memory string    `json:"memory"` // quantity, e.g. "32Gi"
	GPU    string    `json:"gpu"`    // GPU model, e.g. "A10G"
	Image  ImageSpec `json:"image"`
}

// ImageSpec describes the container image built for the runtime
type ImageSpec struct {
	PythonVersion  string `json:"python_version"`  // e.g. "python3.10"
	PythonPackages string `json:"python_packages"` // package manifest path, e.g. "requirements.txt"
}

// VolumeMount is a persistent storage area attached to every execution
type VolumeMount struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Well-known volume names
const (
	VolumeCheckpoints      = "checkpoints"
	VolumePretrainedModels = "pretrained-models"
)

// Volume returns the mount with the given name
func (a App) Volume(name string) (VolumeMount, bool) {
	for _, v := range a.Volumes {
		if v.Name == name {
			return v, true
		}
	}
	return VolumeMount{}, false
}

// CheckpointsPath is where training writes and inference reads fine-tuned artifacts
func (a App) CheckpointsPath() string {
	v, _ := a.Volume(VolumeCheckpoints)
	return v.Path
}

// PretrainedPath is where cached base-model weights live
func (a App) PretrainedPath() string {
	v, _ := a.Volume(VolumePretrainedModels)
	return v.Path
}

// InstancePlan is a concrete instance satisfying a RuntimeSpec
type InstancePlan struct {
	Region       string    `json:"region"`
	InstanceType string    `json:"instance_type"`
	GPUType      string    `json:"gpu_type"`
	GPUs         int       `json:"gpus"`
	GPUMemoryMiB int       `json:"gpu_memory_mib"`
	VCPUs        int       `json:"vcpus"`
	MemoryMiB    int64     `json:"memory_mib"`
	ImageID      string    `json:"image_id,omitempty"`
	ImageName    string    `json:"image_name,omitempty"`
	PricePerHour *float64  `json:"price_per_hour_usd,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at"`
}
