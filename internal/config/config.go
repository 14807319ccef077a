package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/internal/gate"
	"github.com/OCAP2/partswitch/internal/switcher"
)

// FileName is the config file searched in the config dir.
const FileName = "partswitch.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the host state backend.
type StorageConfig struct {
	Type       string       `json:"type" mapstructure:"type"`
	QueueLimit int          `json:"queueLimit" mapstructure:"queueLimit"`
	Memory     MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite     SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// InfluxConfig holds the switch event metrics sink settings.
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./partswitch-logs")
	viper.SetDefault("contentDir", "./content")
	viper.SetDefault("templateSources", []string{"STORAGE_TEMPLATE"})
	viper.SetDefault("tagFilter", []string{})
	viper.SetDefault("progression", false)

	policy := gate.DefaultPolicy()
	viper.SetDefault("policy.payToReconfigure", policy.PayToReconfigure)
	viper.SetDefault("policy.requireSkillCheck", policy.RequireSkillCheck)
	viper.SetDefault("policy.recycleBase", policy.RecycleBase)
	viper.SetDefault("policy.perLevelBonus", policy.PerLevelBonus)

	opts := switcher.DefaultOptions()
	viper.SetDefault("controller.keepResources", []string{})
	viper.SetDefault("controller.placeholderCapacity", opts.PlaceholderCapacity)
	viper.SetDefault("controller.inflatable", false)
	viper.SetDefault("controller.capacityFactor", opts.CapacityFactor)
	viper.SetDefault("controller.allowDeployWhenOccupied", false)
	viper.SetDefault("controller.allowDeployWithAttachments", false)

	viper.SetDefault("capability.ignore", []string{})
	viper.SetDefault("capability.editorUnsafe", []string{capability.TypeLight})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.queueLimit", 10000)
	viper.SetDefault("storage.memory.outputDir", "./states")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./partswitch.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "partswitch")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "partswitch")
	viper.SetDefault("influx.bucket", "switch-events")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStringSlice returns a list config value.
func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}

// Policy returns the cost and skill rules.
func Policy() gate.Policy {
	return gate.Policy{
		PayToReconfigure:  viper.GetBool("policy.payToReconfigure"),
		RequireSkillCheck: viper.GetBool("policy.requireSkillCheck"),
		RecycleBase:       viper.GetFloat64("policy.recycleBase"),
		PerLevelBonus:     viper.GetFloat64("policy.perLevelBonus"),
	}
}

// ControllerOptions returns the per-host controller settings.
func ControllerOptions() switcher.Options {
	return switcher.Options{
		KeepResources:              viper.GetStringSlice("controller.keepResources"),
		PlaceholderCapacity:        viper.GetFloat64("controller.placeholderCapacity"),
		Inflatable:                 viper.GetBool("controller.inflatable"),
		AllowDeployWhenOccupied:    viper.GetBool("controller.allowDeployWhenOccupied"),
		AllowDeployWithAttachments: viper.GetBool("controller.allowDeployWithAttachments"),
		CapacityFactor:             viper.GetFloat64("controller.capacityFactor"),
	}
}

// CapabilityOptions returns the capability manager lists.
func CapabilityOptions() capability.Options {
	return capability.Options{
		Ignore:       viper.GetStringSlice("capability.ignore"),
		EditorUnsafe: viper.GetStringSlice("capability.editorUnsafe"),
	}
}

// Storage returns the host state backend settings.
func Storage() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		QueueLimit: viper.GetInt("storage.queueLimit"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// Influx returns the InfluxDB sink settings.
func Influx() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}
