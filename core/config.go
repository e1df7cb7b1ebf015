package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

// DefaultTimeZone is the zone used for payment projections when none is configured.
const DefaultTimeZone = "Africa/Cairo"

type (
	Config struct {
		Debug                    bool
		TestMode                 bool
		AppName                  string
		Env                      string
		Build                    string
		SecretKey                string
		TimeZone                 string
		FrontendBaseURL          string
		DefaultFromName          string
		DefaultFromAddr          string
		FinanceEmail             string
		SendgridAPIKey           string
		RollbarToken             string
		ExpectedPaymentsCacheTTL time.Duration
		Server                   ServerConfig
		Database                 DatabaseConfig

		loc *time.Location
	}

	ServerConfig struct {
		Host               string
		Port               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromName, Address: c.DefaultFromAddr}
}

// Location returns the school's reference time zone. All payment projections
// are computed in this zone.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		loc, err := time.LoadLocation(c.TimeZone)
		if err != nil {
			loc = time.UTC
		}
		c.loc = loc
	}
	return c.loc
}

// NewConfig loads the configuration from config/.env.<env> (if present) and
// the environment, validates it and bails out on invalid settings.
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Malipo")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "x2m)1u^billing#3&=0e8@7p(ym03t-22+&vx0l&0h4asq7o4&")
	conf.SetDefault("timeZone", DefaultTimeZone)
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromName", "Malipo")
	conf.SetDefault("defaultFromAddr", "noreply@localhost")
	conf.SetDefault("financeEmail", "finance@localhost")
	conf.SetDefault("expectedPaymentsCacheTTL", 5*time.Minute)
	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("serverDebugHost", "0.0.0.0:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseName", "malipo")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", "5432")
	conf.SetDefault("databaseDisableTLS", true)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	conf.SetDefault("testMode", env == "TEST")
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	c := &Config{
		Debug:                    conf.GetBool("debug"),
		TestMode:                 conf.GetBool("testMode"),
		AppName:                  conf.GetString("appName"),
		Env:                      env,
		Build:                    conf.GetString("build"),
		SecretKey:                conf.GetString("secretKey"),
		TimeZone:                 conf.GetString("timeZone"),
		FrontendBaseURL:          conf.GetString("frontendBaseURL"),
		DefaultFromName:          conf.GetString("defaultFromName"),
		DefaultFromAddr:          conf.GetString("defaultFromAddr"),
		FinanceEmail:             conf.GetString("financeEmail"),
		SendgridAPIKey:           conf.GetString("sendgridApiKey"),
		RollbarToken:             conf.GetString("rollbarToken"),
		ExpectedPaymentsCacheTTL: conf.GetDuration("expectedPaymentsCacheTTL"),
		Server: ServerConfig{
			Host:               conf.GetString("serverHost"),
			Port:               conf.GetString("serverPort"),
			DebugHost:          conf.GetString("serverDebugHost"),
			ShutdownTimeout:    conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("databaseEngine"),
			Name:          conf.GetString("databaseName"),
			User:          conf.GetString("databaseUser"),
			Password:      conf.GetString("databasePassword"),
			AdminUser:     conf.GetString("databaseAdminUser"),
			AdminPassword: conf.GetString("databaseAdminPassword"),
			Host:          conf.GetString("databaseHost"),
			Port:          conf.GetString("databasePort"),
			DisableTLS:    conf.GetBool("databaseDisableTLS"),
		},
	}

	if err := c.validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Fatalf("config.time.LoadLocation(%s): %v", c.TimeZone, err)
	}
	c.loc = loc

	return c
}

func (c *Config) validate() error {
	checkers := []vala.Checker{
		vala.StringNotEmpty(c.AppName, "appName"),
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.TimeZone, "timeZone"),
		vala.StringNotEmpty(c.Database.Engine, "databaseEngine"),
		vala.StringNotEmpty(c.Database.Name, "databaseName"),
	}
	if !(c.Debug || c.TestMode) {
		checkers = append(checkers,
			vala.StringNotEmpty(c.SendgridAPIKey, "sendgridApiKey"),
			vala.StringNotEmpty(c.RollbarToken, "rollbarToken"),
		)
	}
	if err := vala.BeginValidation().Validate(checkers...).Check(); err != nil {
		return err
	}
	if c.ExpectedPaymentsCacheTTL < 0 {
		return fmt.Errorf("expectedPaymentsCacheTTL cannot be negative")
	}
	return nil
}
