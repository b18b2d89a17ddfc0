package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Blob     BlobConfig
	Gallery  GalleryConfig
	QR       QRConfig
	Pdf      PdfConfig
	Scan     ScanConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// SQLite file path, or ":memory:" for throwaway runs.
	Path string
}

type RedisConfig struct {
	Addr    string
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketValidated string
	BatchCompleted  string
}

type BlobConfig struct {
	// Root directory of the blob sink; uploads land under
	// <Root>/qrcodes/<generation date>/.
	Root string
}

type GalleryConfig struct {
	// Root directory of the local gallery sink; images land under
	// <Root>/QRM/<generation date>/.
	Root string
}

type QRConfig struct {
	SizePx        int
	LabelHeightPx int
}

type PdfConfig struct {
	FontPath string
	FontName string
}

type ScanConfig struct {
	LockTTL time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Path: getEnv("SQLITE_PATH", "qrm.db"),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				TicketValidated: getEnv("KAFKA_TOPIC_VALIDATED", "ticket-validated"),
				BatchCompleted:  getEnv("KAFKA_TOPIC_BATCH", "batch-completed"),
			},
		},
		Blob: BlobConfig{
			Root: getEnv("BLOB_ROOT", "blobstore"),
		},
		Gallery: GalleryConfig{
			Root: getEnv("GALLERY_ROOT", "gallery"),
		},
		QR: QRConfig{
			SizePx:        getEnvInt("QR_SIZE_PX", 300),
			LabelHeightPx: getEnvInt("QR_LABEL_HEIGHT_PX", 24),
		},
		Pdf: PdfConfig{
			FontPath: getEnv("PDF_FONT_PATH", "./fonts/DejaVuSans.ttf"),
			FontName: getEnv("PDF_FONT_NAME", "dejavu"),
		},
		Scan: ScanConfig{
			LockTTL: time.Duration(getEnvInt("SCAN_LOCK_TTL_SECONDS", 10)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
