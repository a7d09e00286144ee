package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full server configuration, loaded from environment
// variables with an optional .env file. The engine and report defaults
// (terminal-visit window, out-of-protocol flagging, profit-share sites and
// weights) live here so the scheduling service gets explicit values rather
// than reading ambient state.
type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BodyLimit             string `mapstructure:"BODY_LIMIT"`
	ImportBodyLimit       string `mapstructure:"IMPORT_BODY_LIMIT"`

	// Engine knobs.
	TerminalVisitWindow int  `mapstructure:"ENGINE_TERMINAL_VISIT_WINDOW"`
	FlagOutOfProtocol   bool `mapstructure:"ENGINE_FLAG_OUT_OF_PROTOCOL"`

	// Profit-share report defaults. Sites default to unset: the report
	// endpoint refuses to run until both are named here or per request.
	// With all weights zero the split is even.
	ProfitSiteA             string `mapstructure:"PROFIT_SHARE_SITE_A"`
	ProfitSiteB             string `mapstructure:"PROFIT_SHARE_SITE_B"`
	ProfitListSizeA         int    `mapstructure:"PROFIT_SHARE_LIST_SIZE_A"`
	ProfitListSizeB         int    `mapstructure:"PROFIT_SHARE_LIST_SIZE_B"`
	ProfitListSizeWeight    int    `mapstructure:"PROFIT_SHARE_LIST_SIZE_WEIGHT"`
	ProfitWorkDoneWeight    int    `mapstructure:"PROFIT_SHARE_WORK_DONE_WEIGHT"`
	ProfitRecruitmentWeight int    `mapstructure:"PROFIT_SHARE_RECRUITMENT_WEIGHT"`
}

// Load reads configuration from the environment and a .env file in the
// working directory, if one exists.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path (the --config flag).
// An empty path falls back to .env.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("IMPORT_BODY_LIMIT", "10M")
	v.SetDefault("ENGINE_TERMINAL_VISIT_WINDOW", 5)
	v.SetDefault("ENGINE_FLAG_OUT_OF_PROTOCOL", false)
	v.SetDefault("PROFIT_SHARE_SITE_A", "")
	v.SetDefault("PROFIT_SHARE_SITE_B", "")
	v.SetDefault("PROFIT_SHARE_LIST_SIZE_A", 0)
	v.SetDefault("PROFIT_SHARE_LIST_SIZE_B", 0)
	v.SetDefault("PROFIT_SHARE_LIST_SIZE_WEIGHT", 0)
	v.SetDefault("PROFIT_SHARE_WORK_DONE_WEIGHT", 0)
	v.SetDefault("PROFIT_SHARE_RECRUITMENT_WEIGHT", 0)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("IMPORT_BODY_LIMIT")
	v.BindEnv("ENGINE_TERMINAL_VISIT_WINDOW")
	v.BindEnv("ENGINE_FLAG_OUT_OF_PROTOCOL")
	v.BindEnv("PROFIT_SHARE_SITE_A")
	v.BindEnv("PROFIT_SHARE_SITE_B")
	v.BindEnv("PROFIT_SHARE_LIST_SIZE_A")
	v.BindEnv("PROFIT_SHARE_LIST_SIZE_B")
	v.BindEnv("PROFIT_SHARE_LIST_SIZE_WEIGHT")
	v.BindEnv("PROFIT_SHARE_WORK_DONE_WEIGHT")
	v.BindEnv("PROFIT_SHARE_RECRUITMENT_WEIGHT")

	// Try reading the config file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET or AUTH_ISSUER.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode some real JWT verification source must be configured: either a shared
// HMAC secret or an issuer whose JWKS can be discovered.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"JWT_SECRET or AUTH_ISSUER must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}

	if c.TerminalVisitWindow < 0 {
		return fmt.Errorf("ENGINE_TERMINAL_VISIT_WINDOW must not be negative, got %d", c.TerminalVisitWindow)
	}

	// Weights are percentages; they need not sum to 100.
	weights := map[string]int{
		"PROFIT_SHARE_LIST_SIZE_WEIGHT":   c.ProfitListSizeWeight,
		"PROFIT_SHARE_WORK_DONE_WEIGHT":   c.ProfitWorkDoneWeight,
		"PROFIT_SHARE_RECRUITMENT_WEIGHT": c.ProfitRecruitmentWeight,
	}
	for name, w := range weights {
		if w < 0 || w > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, w)
		}
	}

	if c.ProfitListSizeA < 0 || c.ProfitListSizeB < 0 {
		return fmt.Errorf("profit share list sizes must not be negative")
	}

	return nil
}
