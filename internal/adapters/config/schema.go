package config

import "time"

// Shipfile represents the structure of the ship.yaml configuration file.
type Shipfile struct {
	Name       string        `yaml:"name"`
	Entrypoint string        `yaml:"entrypoint"`
	Sources    []string      `yaml:"sources"`
	Exclude    []string      `yaml:"exclude"`
	Verify     VerifyDTO     `yaml:"verify"`
	Bootstrap  BootstrapDTO  `yaml:"bootstrap"`
	Platforms  []PlatformDTO `yaml:"platforms"`
	Release    ReleaseDTO    `yaml:"release"`
}

// VerifyDTO represents the smoke test settings.
type VerifyDTO struct {
	Args    []string      `yaml:"args"`
	Expect  string        `yaml:"expect"`
	Timeout time.Duration `yaml:"timeout"`
}

// BootstrapDTO represents the build-time dependency set.
type BootstrapDTO struct {
	PipFloor       string        `yaml:"pip_floor"`
	InstallTimeout time.Duration `yaml:"install_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	Requirements   []string      `yaml:"requirements"`
}

// PlatformDTO represents one entry of the build matrix.
type PlatformDTO struct {
	Name        string            `yaml:"name"`
	OS          string            `yaml:"os"`
	Interpreter string            `yaml:"interpreter"`
	Toolchain   string            `yaml:"toolchain"`
	ABI         string            `yaml:"abi"`
	Bundle      []string          `yaml:"bundle"`
	Output      string            `yaml:"output"`
	Env         map[string]string `yaml:"env"`
}

// ReleaseDTO represents the release target.
type ReleaseDTO struct {
	Target      string        `yaml:"target"`
	Dir         string        `yaml:"dir"`
	S3          S3DTO         `yaml:"s3"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// S3DTO represents an S3-compatible bucket. Credentials never come from the file.
type S3DTO struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Secure   *bool  `yaml:"secure"`
}
