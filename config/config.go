package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML values like
// "30s" or "24h". A bare number is taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := cast.ToInt64E(value.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return errors.Errorf("invalid duration %q", value.Value)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SysConfig system-level settings
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Location string `yaml:"location" json:"location"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// ScheduleConfig controls the collection tick loop and the cadences of
// the maintenance jobs. CompactCron and BackupCron are cron expressions
// evaluated by robfig/cron (descriptors like "@daily" are accepted).
type ScheduleConfig struct {
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`
	HostTimeout  Duration `yaml:"host_timeout" json:"host_timeout"`
	ProbeTimeout Duration `yaml:"probe_timeout" json:"probe_timeout"`
	MaxWorkers   int      `yaml:"max_workers" json:"max_workers"`
	CompactCron  string   `yaml:"compact_cron" json:"compact_cron"`
	BackupCron   string   `yaml:"backup_cron" json:"backup_cron"`
}

// RetentionConfig bounds the raw sample horizon. Rows older than Cutoff
// are folded into Bucket-wide aggregates by the compactor.
type RetentionConfig struct {
	Cutoff Duration `yaml:"cutoff" json:"cutoff"`
	Bucket Duration `yaml:"bucket" json:"bucket"`
}

type SftpConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Addr      string `yaml:"addr" json:"addr"`
	User      string `yaml:"user" json:"user"`
	Passwd    string `yaml:"passwd" json:"passwd"`
	RemoteDir string `yaml:"remote_dir" json:"remote_dir"`
}

type BackupConfig struct {
	Dir  string     `yaml:"dir" json:"dir"`
	Keep int        `yaml:"keep" json:"keep"`
	Sftp SftpConfig `yaml:"sftp" json:"sftp"`
}

// Credential is a named SSH credential set referenced by inventory hosts.
type Credential struct {
	Username       string `yaml:"username" json:"username"`
	Passwd         string `yaml:"passwd" json:"passwd"`
	PrivateKeyFile string `yaml:"private_key_file" json:"private_key_file"`
}

// HostConfig one inventory entry. OsFamily selects the remote command
// dialect ("windows" or "linux"). PollInterval of zero inherits the
// global ScheduleConfig.PollInterval.
type HostConfig struct {
	Name         string   `yaml:"name" json:"name"`
	Address      string   `yaml:"address" json:"address"`
	Port         int      `yaml:"port" json:"port"`
	OsFamily     string   `yaml:"os_family" json:"os_family"`
	Credential   string   `yaml:"credential" json:"credential"`
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`
	Enabled      bool     `yaml:"enabled" json:"enabled"`
}

type AppConfig struct {
	System             SysConfig             `yaml:"system" json:"system"`
	Logger             LogConfig             `yaml:"logger" json:"logger"`
	Database           DBConfig              `yaml:"database" json:"database"`
	Schedule           ScheduleConfig        `yaml:"schedule" json:"schedule"`
	Retention          RetentionConfig       `yaml:"retention" json:"retention"`
	Backup             BackupConfig          `yaml:"backup" json:"backup"`
	Credentials        map[string]Credential `yaml:"credentials" json:"credentials"`
	FallbackCredential string                `yaml:"fallback_credential" json:"fallback_credential"`
	Inventory          []HostConfig          `yaml:"inventory" json:"inventory"`
}

var DefaultAppConfig = AppConfig{
	System: SysConfig{
		Appid:    "servermon",
		Workdir:  "/var/servermon",
		Location: "Asia/Taipei",
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/servermon/servermon.log",
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "server_resources",
		User:     "postgres",
		MaxConn:  50,
		IdleConn: 10,
	},
	Schedule: ScheduleConfig{
		PollInterval: Duration(60 * time.Second),
		HostTimeout:  Duration(30 * time.Second),
		ProbeTimeout: Duration(5 * time.Second),
		MaxWorkers:   25,
		CompactCron:  "@daily",
		BackupCron:   "@daily",
	},
	Retention: RetentionConfig{
		Cutoff: Duration(30 * 24 * time.Hour),
		Bucket: Duration(10 * time.Minute),
	},
	Backup: BackupConfig{
		Dir:  "/var/servermon/backups",
		Keep: 14,
	},
}

// LoadConfig reads the YAML config file, layering it over the defaults,
// then applies environment overrides. A missing file is an error; the
// caller decides whether that is fatal.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig
	data, err := os.ReadFile(cfile)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyEnv() {
	setEnvStr := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setEnvStr("SERVERMON_WORKDIR", &c.System.Workdir)
	setEnvStr("SERVERMON_DB_HOST", &c.Database.Host)
	setEnvStr("SERVERMON_DB_NAME", &c.Database.Name)
	setEnvStr("SERVERMON_DB_USER", &c.Database.User)
	setEnvStr("SERVERMON_DB_PWD", &c.Database.Passwd)
	if v := os.Getenv("SERVERMON_DB_PORT"); v != "" {
		c.Database.Port = cast.ToInt(v)
	}
	if v := os.Getenv("SERVERMON_DB_DEBUG"); v != "" {
		c.Database.Debug = cast.ToBool(v)
	}
}

// Validate rejects configurations the process cannot start with.
func (c *AppConfig) Validate() error {
	if c.Database.Type != "postgres" && c.Database.Type != "sqlite" {
		return errors.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Schedule.PollInterval <= 0 {
		return errors.New("schedule.poll_interval must be positive")
	}
	if c.Schedule.HostTimeout <= 0 {
		return errors.New("schedule.host_timeout must be positive")
	}
	if c.Schedule.MaxWorkers <= 0 {
		c.Schedule.MaxWorkers = DefaultAppConfig.Schedule.MaxWorkers
	}
	if c.Retention.Bucket <= 0 {
		return errors.New("retention.bucket must be positive")
	}
	for _, host := range c.Inventory {
		if host.Name == "" || host.Address == "" {
			return errors.Errorf("inventory host missing name or address: %+v", host)
		}
		if _, ok := c.Credentials[host.Credential]; !ok {
			return errors.Errorf("inventory host %s references unknown credential %q", host.Name, host.Credential)
		}
	}
	if c.FallbackCredential != "" {
		if _, ok := c.Credentials[c.FallbackCredential]; !ok {
			return errors.Errorf("fallback_credential %q is not defined", c.FallbackCredential)
		}
	}
	return nil
}
