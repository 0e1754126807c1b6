package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	Gateway Gateway `envPrefix:"GATEWAY_"`
	Admin   Admin   `envPrefix:"ADMIN_"`
	Sweeper Sweeper `envPrefix:"SWEEPER_"`
}

// Gateway holds the QR-payment gateway merchant credentials.
// MerchantID, SecretKey and NotifyURL have no usable defaults; the
// gateway client refuses to construct without them.
type Gateway struct {
	APIBase    string `env:"API_BASE" envDefault:"https://api.pay.yungouos.com"`
	MerchantID string `env:"MERCHANT_ID"`
	SecretKey  string `env:"SECRET_KEY"`
	NotifyURL  string `env:"NOTIFY_URL"`
}

type Admin struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Sweeper struct {
	// cron expressions, seconds field included
	ExpireSchedule    string `env:"EXPIRE_SCHEDULE" envDefault:"0 */10 * * * *"`
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"0 */2 * * * *"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
