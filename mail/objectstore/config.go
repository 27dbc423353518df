package objectstore

// Config of the S3-compatible attachment store. Works with MinIO, Yandex
// Cloud Storage, AWS S3 and other S3-compatible providers.
type Config struct {
	Endpoint  string `envconfig:"MAIL_S3_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MAIL_S3_ACCESS_KEY" required:"true"`
	SecretKey string `envconfig:"MAIL_S3_SECRET_KEY" required:"true"`
	Region    string `envconfig:"MAIL_S3_REGION" default:"us-east-1"`
	Bucket    string `envconfig:"MAIL_S3_BUCKET"`               // used when Attach gets no bucket
	Secure    bool   `envconfig:"MAIL_S3_SECURE" default:"true"` // use HTTPS
	Timeout   int    `envconfig:"MAIL_S3_TIMEOUT" default:"30"`  // connection check timeout in seconds
	MaxSize   int64  `envconfig:"MAIL_S3_MAX_SIZE" default:"26214400"`
}
