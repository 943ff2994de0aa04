package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rental_scrooper/models"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultSiteID    = "bj"
	DefaultURL       = "https://bj.lianjia.com/zufang/pg%d/"
)

type Config struct {
	Scraper       ScraperConfig
	HTTP          HTTPConfig
	Output        OutputConfig
	Scheduler     SchedulerConfig
	Postgres      PostgresConfig
	S3            S3Config
	API           APIConfig
	DBPath        string
	LogPath       string
	LogLevel      string
	SiteConfigDir string
	Sites         map[string]*SiteConfig
}

type ScraperConfig struct {
	MaxPages           int
	DelayMin           time.Duration
	DelayMax           time.Duration
	EmptyPageThreshold int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
}

type HTTPConfig struct {
	CookieString      string
	UserAgent         string
	RotateUserAgent   bool
	Timeout           time.Duration
	RequestsPerSecond float64
	ProxyURL          string
}

type OutputConfig struct {
	Dir            string
	FilenamePrefix string
	Fields         []string
	ReportDir      string
}

type SchedulerConfig struct {
	Interval  time.Duration
	Cron      string
	StartPage int
	EndPage   int
}

type PostgresConfig struct {
	DSN string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type APIConfig struct {
	Addr string
}

// SiteConfig describes one listing portal, usually one city.
type SiteConfig struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	City         string  `yaml:"city"`
	Handler      string  `yaml:"handler"`
	URLTemplate  string  `yaml:"url_template"`
	OutputPrefix string  `yaml:"output_prefix"`
	AvgSalary    float64 `yaml:"avg_salary"`
}

// PageURL renders the listing page address for a 1-based page number.
func (s *SiteConfig) PageURL(page int) string {
	return fmt.Sprintf(s.URLTemplate, page)
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scraper: ScraperConfig{
			MaxPages:           getEnvInt("MAX_PAGES", 300),
			DelayMin:           seconds(getEnvFloat("DELAY_MIN", 1)),
			DelayMax:           seconds(getEnvFloat("DELAY_MAX", 3)),
			EmptyPageThreshold: getEnvInt("EMPTY_PAGE_THRESHOLD", 3),
			MaxRetries:         getEnvInt("MAX_RETRIES", 3),
			RetryBaseDelay:     time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,
			RetryMaxDelay:      time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 30000)) * time.Millisecond,
		},
		HTTP: HTTPConfig{
			CookieString:      os.Getenv("COOKIE_STRING"),
			UserAgent:         getEnv("USER_AGENT", DefaultUserAgent),
			RotateUserAgent:   os.Getenv("UA_ROTATE") == "true",
			Timeout:           seconds(getEnvFloat("REQUEST_TIMEOUT", 30)),
			RequestsPerSecond: getEnvFloat("REQUESTS_PER_SECOND", 2),
			ProxyURL:          os.Getenv("PROXY_URL"),
		},
		Output: OutputConfig{
			Dir:            getEnv("OUTPUT_DIR", "data"),
			FilenamePrefix: getEnv("OUTPUT_FILENAME_PREFIX", "beijing_rental_data"),
			Fields:         getEnvList("DATA_FIELDS", models.DefaultFields),
			ReportDir:      getEnv("REPORT_DIR", "reports"),
		},
		Scheduler: SchedulerConfig{
			Cron:      os.Getenv("SCRAPE_CRON"),
			StartPage: getEnvInt("SCRAPE_START_PAGE", 1),
			EndPage:   getEnvInt("SCRAPE_END_PAGE", 0),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("PG_DSN"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          getEnv("S3_PREFIX", "rental"),
		},
		API: APIConfig{
			Addr: getEnv("API_ADDR", ":8080"),
		},
		DBPath:        getEnv("DB_PATH", "scraper.db"),
		LogPath:       getEnv("LOG_PATH", "scraper.log"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SiteConfigDir: getEnv("SITE_CONFIG_DIR", "config/sites"),
		Sites:         make(map[string]*SiteConfig),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}
	if cfg.Scheduler.EndPage == 0 {
		cfg.Scheduler.EndPage = cfg.Scraper.MaxPages
	}

	if err := cfg.loadSiteConfigs(cfg.SiteConfigDir); err != nil {
		return nil, fmt.Errorf("load site configs: %w", err)
	}
	if len(cfg.Sites) == 0 {
		cfg.Sites[DefaultSiteID] = cfg.defaultSite()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) defaultSite() *SiteConfig {
	return &SiteConfig{
		ID:           DefaultSiteID,
		Name:         "Lianjia Beijing",
		City:         "北京",
		Handler:      "http",
		URLTemplate:  DefaultURL,
		OutputPrefix: c.Output.FilenamePrefix,
	}
}

func (c *Config) loadSiteConfigs(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if site.ID == "" {
			return fmt.Errorf("%s: missing id", entry.Name())
		}
		if site.URLTemplate == "" {
			site.URLTemplate = fmt.Sprintf("https://%s.lianjia.com/zufang/pg%%d/", site.ID)
		}
		if site.OutputPrefix == "" {
			site.OutputPrefix = site.ID + "_rental_data"
		}
		if site.Handler == "" {
			site.Handler = "http"
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

// Validate rejects settings the crawler cannot run with.
func (c *Config) Validate() error {
	if c.Scraper.DelayMin < 0 || c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("invalid delay range [%s, %s]", c.Scraper.DelayMin, c.Scraper.DelayMax)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1, got %d", c.Scraper.MaxPages)
	}
	if c.Scraper.EmptyPageThreshold < 1 {
		return fmt.Errorf("empty page threshold must be at least 1, got %d", c.Scraper.EmptyPageThreshold)
	}
	if _, err := models.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if len(c.Output.Fields) == 0 {
		return fmt.Errorf("field list is empty")
	}
	for _, f := range c.Output.Fields {
		if !models.IsKnownField(f) {
			return fmt.Errorf("unknown data field %q", f)
		}
	}
	for id, site := range c.Sites {
		if !strings.Contains(site.URLTemplate, "%d") {
			return fmt.Errorf("site %s: url_template must contain %%d", id)
		}
	}
	return nil
}

// SiteIDs returns the configured site ids in a stable order.
func (c *Config) SiteIDs() []string {
	ids := make([]string, 0, len(c.Sites))
	for id := range c.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SiteByPrefix finds the site whose output prefix starts the given file name.
func (c *Config) SiteByPrefix(fileName string) *SiteConfig {
	var best *SiteConfig
	for _, id := range c.SiteIDs() {
		site := c.Sites[id]
		if site.OutputPrefix == "" || !strings.HasPrefix(fileName, site.OutputPrefix) {
			continue
		}
		if best == nil || len(site.OutputPrefix) > len(best.OutputPrefix) {
			best = site
		}
	}
	return best
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
