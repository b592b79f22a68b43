package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig namespace for every variable below.
const EnvPrefix = "ARB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Amazon   AmazonConfig
	Ebay     EbayConfig
	Keepa    KeepaConfig
	Finder   FinderConfig
	Profit   ProfitConfig
	Workflow WorkflowConfig
	Orders   OrdersConfig
	Pairs    PairsConfig
	Buyer    BuyerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env      string `envconfig:"ARB_APP_ENV" default:"dev"`
	Port     string `envconfig:"ARB_APP_PORT" default:"8090"`
	LogLevel string `envconfig:"ARB_LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ARB_DB_DSN"`
	Driver string `envconfig:"ARB_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ARB_DB_HOST"`
	Port     int    `envconfig:"ARB_DB_PORT" default:"5432"`
	User     string `envconfig:"ARB_DB_USER"`
	Password string `envconfig:"ARB_DB_PASSWORD"`
	Name     string `envconfig:"ARB_DB_NAME"`
	SSLMode  string `envconfig:"ARB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARB_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"ARB_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"ARB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARB_REDIS_URL"`
	Address      string        `envconfig:"ARB_REDIS_ADDR"`
	Password     string        `envconfig:"ARB_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AmazonConfig covers the source-marketplace gateway.
type AmazonConfig struct {
	SellerID   string `envconfig:"ARB_AMAZON_SELLER_ID"`
	AccessKey  string `envconfig:"ARB_AMAZON_ACCESS_KEY"`
	SecretKey  string `envconfig:"ARB_AMAZON_SECRET_KEY"`
	AuthToken  string `envconfig:"ARB_AMAZON_AUTH_TOKEN"`
	Region     string `envconfig:"ARB_AMAZON_REGION" default:"US"`
	CallBudget int    `envconfig:"ARB_AMAZON_CALL_BUDGET" default:"18000"`

	// Batch limits for the pricing APIs.
	PriceBatchSize  int           `envconfig:"ARB_AMAZON_PRICE_BATCH_SIZE" default:"20"`
	PriceBatchDelay time.Duration `envconfig:"ARB_AMAZON_PRICE_BATCH_DELAY" default:"500ms"`

	RetryAttempts int           `envconfig:"ARB_AMAZON_RETRY_ATTEMPTS" default:"5"`
	RetryDelay    time.Duration `envconfig:"ARB_AMAZON_RETRY_DELAY" default:"5s"`
	CallTimeout   time.Duration `envconfig:"ARB_AMAZON_CALL_TIMEOUT" default:"30s"`
}

// EbayConfig covers the destination-marketplace gateway. TokenExpiry is
// checked at startup: an expired user token is fatal.
type EbayConfig struct {
	AppID       string `envconfig:"ARB_EBAY_APP_ID"`
	DevID       string `envconfig:"ARB_EBAY_DEV_ID"`
	CertID      string `envconfig:"ARB_EBAY_CERT_ID"`
	UserToken   string `envconfig:"ARB_EBAY_USER_TOKEN"`
	TokenExpiry string `envconfig:"ARB_EBAY_TOKEN_EXPIRY"`
	CallBudget  int    `envconfig:"ARB_EBAY_CALL_BUDGET" default:"5000"`

	RetryAttempts int           `envconfig:"ARB_EBAY_RETRY_ATTEMPTS" default:"5"`
	RetryDelay    time.Duration `envconfig:"ARB_EBAY_RETRY_DELAY" default:"5s"`
	CallTimeout   time.Duration `envconfig:"ARB_EBAY_CALL_TIMEOUT" default:"30s"`
}

// TokenExpired reports whether the configured trading token is past its
// expiry date. A missing expiry is treated as unexpired.
func (e EbayConfig) TokenExpired(now time.Time) (bool, error) {
	if e.TokenExpiry == "" {
		return false, nil
	}
	expiry, err := time.Parse("2006-01-02 15:04:05", e.TokenExpiry)
	if err != nil {
		return false, fmt.Errorf("parsing token expiry: %w", err)
	}
	return !expiry.After(now), nil
}

type KeepaConfig struct {
	APIKey            string  `envconfig:"ARB_KEEPA_API_KEY"`
	RecencyWindowDays int     `envconfig:"ARB_KEEPA_RECENCY_WINDOW_DAYS" default:"90"`
	MinRankDrops      int     `envconfig:"ARB_KEEPA_MIN_RANK_DROPS" default:"3"`
	RankDropPercent   float64 `envconfig:"ARB_KEEPA_RANK_DROP_PERCENT" default:"10"`
	MaxSellers        int     `envconfig:"ARB_KEEPA_MAX_SELLERS" default:"20"`
	RankCeiling       int     `envconfig:"ARB_KEEPA_RANK_CEILING" default:"500000"`
	SimpleMode        bool    `envconfig:"ARB_KEEPA_SIMPLE_MODE" default:"false"`
}

type FinderConfig struct {
	Concurrency        int           `envconfig:"ARB_FINDER_CONCURRENCY" default:"8"`
	TitleTokens        int           `envconfig:"ARB_FINDER_TITLE_TOKENS" default:"8"`
	MaxDeliveryDays    int           `envconfig:"ARB_FINDER_MAX_DELIVERY_DAYS" default:"9"`
	MinFeedbackScore   int           `envconfig:"ARB_FINDER_MIN_FEEDBACK_SCORE" default:"100"`
	MinPositivePercent float64       `envconfig:"ARB_FINDER_MIN_POSITIVE_PERCENT" default:"95"`
	ProxyEnabled       bool          `envconfig:"ARB_FINDER_PROXY_ENABLED" default:"false"`
	ProxyTries         int           `envconfig:"ARB_FINDER_PROXY_TRIES" default:"10"`
	PageDelay          time.Duration `envconfig:"ARB_FINDER_PAGE_DELAY" default:"1s"`

	// CatalogURL is the paginated source-catalog endpoint discovery
	// enumerates. ProxyList is the comma-separated pool of proxy
	// addresses used when proxying is enabled.
	CatalogURL string   `envconfig:"ARB_FINDER_CATALOG_URL"`
	ProxyList  []string `envconfig:"ARB_FINDER_PROXY_LIST"`

	// DefaultOwner is the owner id new scheduled discoveries are created
	// under. Discovery is skipped when unset.
	DefaultOwner string `envconfig:"ARB_FINDER_DEFAULT_OWNER"`
}

type ProfitConfig struct {
	MarginTarget float64 `envconfig:"ARB_PROFIT_MARGIN_TARGET" default:"0.85"`
	Buffer       float64 `envconfig:"ARB_PROFIT_BUFFER" default:"1"`
}

type WorkflowConfig struct {
	FeedTries   int           `envconfig:"ARB_WORKFLOW_FEED_TRIES" default:"3"`
	StageDelay  time.Duration `envconfig:"ARB_WORKFLOW_STAGE_DELAY" default:"1m"`
	PollDelay   time.Duration `envconfig:"ARB_WORKFLOW_POLL_DELAY" default:"1m"`
	MaxPolls    int           `envconfig:"ARB_WORKFLOW_MAX_POLLS" default:"90"`
	SettleDelay time.Duration `envconfig:"ARB_WORKFLOW_SETTLE_DELAY" default:"2m"`
	QuantityCap int           `envconfig:"ARB_WORKFLOW_QUANTITY_CAP" default:"10"`
	Concurrency int           `envconfig:"ARB_WORKFLOW_CONCURRENCY" default:"8"`
	Interval    time.Duration `envconfig:"ARB_WORKFLOW_INTERVAL" default:"24h"`
}

type OrdersConfig struct {
	Lookback time.Duration `envconfig:"ARB_ORDERS_LOOKBACK" default:"16h"`
	Interval time.Duration `envconfig:"ARB_ORDERS_INTERVAL" default:"1h"`
}

type PairsConfig struct {
	UnsuitableDaysLive int           `envconfig:"ARB_PAIRS_UNSUITABLE_DAYS_LIVE" default:"35"`
	CleanupInterval    time.Duration `envconfig:"ARB_PAIRS_CLEANUP_INTERVAL" default:"24h"`
}

type BuyerConfig struct {
	Enabled        bool          `envconfig:"ARB_BUYER_ENABLED" default:"false"`
	Interval       time.Duration `envconfig:"ARB_BUYER_INTERVAL" default:"2h"`
	MinOwnerProfit float64       `envconfig:"ARB_BUYER_MIN_OWNER_PROFIT" default:"0.5"`

	// BotURL is the checkout automation endpoint purchases are delegated
	// to. Required when purchasing is enabled.
	BotURL     string        `envconfig:"ARB_BUYER_BOT_URL"`
	BotAPIKey  string        `envconfig:"ARB_BUYER_BOT_API_KEY"`
	BotTimeout time.Duration `envconfig:"ARB_BUYER_BOT_TIMEOUT" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"ARB_DB_HOST": db.Host,
		"ARB_DB_USER": db.User,
		"ARB_DB_NAME": db.Name,
	}
	for _, env := range []string{"ARB_DB_HOST", "ARB_DB_USER", "ARB_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either ARB_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
