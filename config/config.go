package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY" required:"true"`

	PubMedBaseURL string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string `envconfig:"PUBMED_API_KEY"`
	PubMedTool    string `envconfig:"PUBMED_TOOL" default:"grant-scribe"`

	CrossrefBaseURL string `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	ContactEmail    string `envconfig:"CONTACT_EMAIL"`

	// Auflösungs-Parameter für PubMed-Referenzen
	ResolveTimeoutSeconds int `envconfig:"RESOLVE_TIMEOUT_SECONDS" default:"8"`
	ResolveDelayMillis    int `envconfig:"RESOLVE_DELAY_MILLIS" default:"400"`
	DailyResolveQuota     int `envconfig:"DAILY_RESOLVE_QUOTA" default:"200"`

	// Name der Bibliographie-Sektion pro Antrag
	BibliographySection string `envconfig:"BIBLIOGRAPHY_SECTION" default:"References"`

	// Nächtliche Neu-Verifikation unverifizierter Referenzen
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// S3-Export für Antrags-Snapshots (optional)
	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// ResolveTimeout gibt das Timeout für einen einzelnen PubMed-Aufruf zurück.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

// ResolveDelay gibt die Pause zwischen zwei PubMed-Aufrufen zurück.
func (c *Config) ResolveDelay() time.Duration {
	return time.Duration(c.ResolveDelayMillis) * time.Millisecond
}

// S3Configured meldet, ob alle S3-Parameter gesetzt sind.
func (c *Config) S3Configured() bool {
	return c.S3Key != "" && c.S3Secret != "" && c.S3URL != "" && c.S3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
