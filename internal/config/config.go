// Package config loads beesim settings from a YAML file, BEESIM_ environment
// variables and command-line flags through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/world"
)

// EnvPrefix is prepended to every environment variable viper reads.
const EnvPrefix = "BEESIM"

// DefaultMaxSteps bounds episodes when sim.max_steps is not set. An explicit
// 0 leaves episodes unbounded; they then end only on a reset request.
const DefaultMaxSteps = 5000

type Config struct {
	Sim         SimConfig        `mapstructure:"sim" json:"sim"`
	Environment world.Config     `mapstructure:"environment" json:"environment"`
	Bee         agents.Params    `mapstructure:"bee" json:"bee"`
	Curriculum  CurriculumConfig `mapstructure:"curriculum" json:"curriculum"`
	API         APIConfig        `mapstructure:"api" json:"api"`
	Data        DataConfig       `mapstructure:"data" json:"data"`
	Verbose     bool             `mapstructure:"verbose" json:"verbose"`
}

type SimConfig struct {
	Seed            int64   `mapstructure:"seed" json:"seed"` // 0 draws a crypto seed
	DT              float64 `mapstructure:"dt" json:"dt"`     // Seconds per tick
	MaxSteps        int     `mapstructure:"max_steps" json:"max_steps"`
	Slots           int     `mapstructure:"slots" json:"slots"`
	Policy          string  `mapstructure:"policy" json:"policy"`
	IntervalMS      int     `mapstructure:"interval_ms" json:"interval_ms"` // 0 runs unthrottled
	Speed           float64 `mapstructure:"speed" json:"speed"`
	ReportEvery     uint64  `mapstructure:"report_every" json:"report_every"`
	CheckpointEvery uint64  `mapstructure:"checkpoint_every" json:"checkpoint_every"`
}

type CurriculumConfig struct {
	HiveRadius  float64 `mapstructure:"hive_radius" json:"hive_radius"`
	UseRadius   *bool   `mapstructure:"use_radius" json:"use_radius"` // Unset keeps the default
	LessonsFile string  `mapstructure:"lessons_file" json:"lessons_file"`
	Schedule    bool    `mapstructure:"schedule" json:"schedule"` // Advance lessons in-process during train
}

type APIConfig struct {
	Port            int    `mapstructure:"port" json:"port"`
	AdminKey        string `mapstructure:"admin_key" json:"admin_key,omitempty"` // Bearer token for POST endpoints; empty disables them
	SessionsPerHour int    `mapstructure:"sessions_per_hour" json:"sessions_per_hour"`
}

type DataConfig struct {
	DBPath             string `mapstructure:"db_path" json:"db_path"`
	TrajectoryDir      string `mapstructure:"trajectory_dir" json:"trajectory_dir"`
	RecordTrajectories bool   `mapstructure:"record_trajectories" json:"record_trajectories"`
}

var envKeys = []string{
	"sim.seed",
	"sim.slots",
	"sim.max_steps",
	"api.port",
	"api.admin_key",
	"data.db_path",
	"data.trajectory_dir",
	"curriculum.lessons_file",
}

// Setup points the global viper at the config file and environment. An
// empty path searches the working directory for beesim.yaml.
func Setup(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("beesim")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows.
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return err
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, fills defaults and validates.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !v.IsSet("sim.max_steps") {
		cfg.Sim.MaxSteps = DefaultMaxSteps
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	wd := world.DefaultConfig()
	bd := agents.DefaultParams()

	if cfg.Sim.DT == 0 {
		cfg.Sim.DT = wd.DT
	}
	if cfg.Sim.Slots == 0 {
		cfg.Sim.Slots = 1
	}
	if cfg.Sim.Policy == "" {
		cfg.Sim.Policy = "heuristic"
	}
	if cfg.Sim.Speed == 0 {
		cfg.Sim.Speed = 1
	}
	if cfg.Sim.ReportEvery == 0 {
		cfg.Sim.ReportEvery = 5000
	}
	if cfg.Sim.CheckpointEvery == 0 {
		cfg.Sim.CheckpointEvery = 50000
	}

	env := &cfg.Environment
	env.Seed = cfg.Sim.Seed
	env.DT = cfg.Sim.DT
	if env.FlowerCount == 0 {
		env.FlowerCount = wd.FlowerCount
	}
	if env.ClusterSize == 0 {
		env.ClusterSize = wd.ClusterSize
	}
	if env.ClusterRing == (world.Annulus{}) {
		env.ClusterRing = wd.ClusterRing
	}
	if env.FlowerMaxNectar == 0 {
		env.FlowerMaxNectar = wd.FlowerMaxNectar
	}
	if env.RefillDelay == (world.Annulus{}) {
		env.RefillDelay = wd.RefillDelay
	}
	if env.RefillRate == 0 {
		env.RefillRate = wd.RefillRate
	}
	if env.FlowerRadius == 0 {
		env.FlowerRadius = wd.FlowerRadius
	}
	if env.HiveRadius == 0 {
		env.HiveRadius = wd.HiveRadius
	}
	if env.ScaleMin == 0 && env.ScaleMax == 0 {
		env.ScaleMin, env.ScaleMax = wd.ScaleMin, wd.ScaleMax
	}
	if env.ScaleFrequency == 0 {
		env.ScaleFrequency = wd.ScaleFrequency
	}

	bee := &cfg.Bee
	if bee.MoveSpeed == 0 {
		bee.MoveSpeed = bd.MoveSpeed
	}
	if bee.TurnRate == 0 {
		bee.TurnRate = bd.TurnRate
	}
	if bee.MaxPitch == 0 {
		bee.MaxPitch = bd.MaxPitch
	}
	if bee.MaxNectar == 0 {
		bee.MaxNectar = bd.MaxNectar
	}
	if bee.DrainPerTick == 0 {
		bee.DrainPerTick = bd.DrainPerTick
	}
	if bee.StepPenalty == 0 {
		bee.StepPenalty = bd.StepPenalty
		if cfg.Sim.MaxSteps > 0 {
			bee.StepPenalty = 1.0 / float64(cfg.Sim.MaxSteps)
		}
	}
	if bee.RayDistance == 0 {
		bee.RayDistance = bd.RayDistance
	}
	if bee.SpawnOffset == (world.Vec3{}) {
		bee.SpawnOffset = bd.SpawnOffset
	}
	if bee.Ceiling == 0 {
		bee.Ceiling = bd.Ceiling
	}
	if bee.Radius == 0 {
		bee.Radius = bd.Radius
	}

	if cfg.Curriculum.HiveRadius == 0 && cfg.Curriculum.UseRadius == nil {
		cfg.Curriculum.HiveRadius = curriculum.DefaultHiveRadius
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.SessionsPerHour == 0 {
		cfg.API.SessionsPerHour = 60
	}

	if cfg.Data.DBPath == "" {
		cfg.Data.DBPath = "data/beesim.db"
	}
	if cfg.Data.TrajectoryDir == "" {
		cfg.Data.TrajectoryDir = "data/trajectories"
	}
}

// CurriculumParams returns the starting curriculum parameters.
func (c *Config) CurriculumParams() curriculum.Params {
	p := curriculum.Params{HiveRadius: c.Curriculum.HiveRadius, UseRadius: curriculum.DefaultUseRadius}
	if c.Curriculum.UseRadius != nil {
		p.UseRadius = *c.Curriculum.UseRadius
	}
	return p
}

// Schedule loads the lesson schedule, falling back to the embedded default.
func (c *Config) Schedule() (curriculum.Schedule, error) {
	if c.Curriculum.LessonsFile == "" {
		return curriculum.DefaultSchedule(), nil
	}
	return curriculum.LoadSchedule(c.Curriculum.LessonsFile)
}

func (c *Config) Validate() error {
	if c.Sim.DT <= 0 {
		return fmt.Errorf("sim.dt must be positive, got %v", c.Sim.DT)
	}
	if c.Sim.MaxSteps < 0 {
		return fmt.Errorf("sim.max_steps must be >= 0, got %d", c.Sim.MaxSteps)
	}
	if c.Sim.Slots < 1 {
		return fmt.Errorf("sim.slots must be >= 1, got %d", c.Sim.Slots)
	}
	if c.Sim.IntervalMS < 0 {
		return fmt.Errorf("sim.interval_ms must be >= 0, got %d", c.Sim.IntervalMS)
	}
	if c.Sim.Speed < 0 {
		return fmt.Errorf("sim.speed must be >= 0, got %v", c.Sim.Speed)
	}

	env := c.Environment
	if env.FlowerCount < 0 {
		return fmt.Errorf("environment.flower_count must be >= 0, got %d", env.FlowerCount)
	}
	if env.ClusterSize < 1 {
		return fmt.Errorf("environment.cluster_size must be >= 1, got %d", env.ClusterSize)
	}
	if env.ClusterRing.Min > env.ClusterRing.Max {
		return fmt.Errorf("environment.cluster_ring: min %v > max %v", env.ClusterRing.Min, env.ClusterRing.Max)
	}
	if env.RefillDelay.Min < 0 || env.RefillDelay.Min > env.RefillDelay.Max {
		return fmt.Errorf("environment.refill_delay: invalid range [%v, %v]", env.RefillDelay.Min, env.RefillDelay.Max)
	}
	if env.FlowerMaxNectar <= 0 || env.RefillRate <= 0 {
		return fmt.Errorf("environment: flower_max_nectar and refill_rate must be positive")
	}
	if env.ScaleMin > env.ScaleMax {
		return fmt.Errorf("environment: scale_min %v > scale_max %v", env.ScaleMin, env.ScaleMax)
	}

	if c.Bee.MaxNectar <= 0 || c.Bee.DrainPerTick <= 0 {
		return fmt.Errorf("bee: max_nectar and drain_per_tick must be positive")
	}
	if c.Bee.MoveSpeed < 0 || c.Bee.RayDistance <= 0 {
		return fmt.Errorf("bee: move_speed must be >= 0 and ray_distance positive")
	}

	if err := c.CurriculumParams().Validate(); err != nil {
		return fmt.Errorf("curriculum: %w", err)
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	return nil
}
