package shared

import "time"

type ServerConfig struct {
	VillageVault VillageVaultConfig `mapstructure:"villagevault" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Twilio       TwilioConfig       `mapstructure:"twilio"`
	Google       GoogleConfig       `mapstructure:"google"`
}

type VillageVaultConfig struct {
	// PrivateKeyPem is a path to an RSA private key. Empty generates a throwaway key.
	PrivateKeyPem string         `mapstructure:"privateKeyPem"`
	TokenTTL      time.Duration  `mapstructure:"tokenTTL"`
	FrontendURL   string         `mapstructure:"frontendURL"`
	SeedDemoData  bool           `mapstructure:"seedDemoData"`
	Listener      ListenerConfig `mapstructure:"listener" validate:"required"`
	Cron          CronConfig     `mapstructure:"cron" validate:"required"`
	OTP           OTPConfig      `mapstructure:"otp"`
	Delivery      DeliveryConfig `mapstructure:"delivery"`
	Workers       WorkersConfig  `mapstructure:"workers"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" validate:"required,oneof=sqlite postgres memory"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SqliteConfig struct {
	PassPhrase string `mapstructure:"passPhrase"`
	Dir        string `mapstructure:"dir"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken" validate:"required_with=AccountSid"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
	FromNumber          string `mapstructure:"fromNumber"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type OTPConfig struct {
	Length      int           `mapstructure:"length" validate:"omitempty,min=4,max=10"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"maxAttempts" validate:"gte=0"`
}

type DeliveryConfig struct {
	SMSDelay        time.Duration `mapstructure:"smsDelay"`
	MissedCallDelay time.Duration `mapstructure:"missedCallDelay"`
	ExcludeSender   bool          `mapstructure:"excludeSender"`
}

type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=0"`
}

type StorageConfig struct {
	Bucket                    string      `mapstructure:"bucket" validate:"required_with=EnableSqliteBackupAndSync"`
	Prefix                    string      `mapstructure:"prefix" validate:"required_with=EnableSqliteBackupAndSync"`
	SqliteBackupSchedule      string      `mapstructure:"sqliteBackupSchedule" validate:"required_with=EnableSqliteBackupAndSync"`
	EnableSqliteBackupAndSync interface{} `mapstructure:"enableSqliteBackupAndSync"`
}

// BackupEnabled interprets the loosely typed enableSqliteBackupAndSync setting.
func (config StorageConfig) BackupEnabled() bool {
	switch v := config.EnableSqliteBackupAndSync.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
